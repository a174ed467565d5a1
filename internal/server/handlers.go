package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/claude/repcycle/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid program ID"})
		return
	}

	p, err := s.db.GetProgramTemplate(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "program not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var p models.ProgramTemplate
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if p.Name == "" || len(p.Weeks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "program needs a name and at least one week"})
		return
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	assignIDs(&p)

	if err := s.db.CreateProgram(r.Context(), &p); err != nil {
		s.log.Error("creating program", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": p.ID})
}

// assignIDs fills in missing session and exercise IDs on a submitted
// program.
func assignIDs(p *models.ProgramTemplate) {
	for wi := range p.Weeks {
		for si := range p.Weeks[wi].Sessions {
			sess := &p.Weeks[wi].Sessions[si]
			if sess.ID == uuid.Nil {
				sess.ID = uuid.New()
			}
			for ei := range sess.Exercises {
				if sess.Exercises[ei].ID == uuid.Nil {
					sess.Exercises[ei].ID = uuid.New()
				}
			}
		}
	}
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment ID"})
		return
	}

	a, err := s.db.GetAssignment(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "assignment not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProgramID uuid.UUID `json:"program_id"`
		ClientID  int64     `json:"client_id"`
		CoachID   int64     `json:"coach_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.ProgramID == uuid.Nil || req.ClientID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "program_id and client_id required"})
		return
	}

	a, err := s.db.CreateAssignment(r.Context(), req.ProgramID, req.ClientID, req.CoachID)
	if err != nil {
		s.log.Error("creating assignment", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleQueuedAssignments(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client ID"})
		return
	}
	exclude, err := uuid.Parse(r.URL.Query().Get("exclude"))
	if err != nil {
		exclude = uuid.Nil
	}

	queued, err := s.db.HasQueuedAssignment(r.Context(), clientID, exclude)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"queued": queued})
}

func (s *Server) handleUpdateCursor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment ID"})
		return
	}
	var req struct {
		Week         int `json:"week"`
		SessionIndex int `json:"session_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Week < 1 || req.SessionIndex < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "week and session_index must be positive"})
		return
	}

	// Monotonic: a stale or re-delivered position is a no-op, not an error.
	if err := s.db.UpdateCursor(r.Context(), id, req.Week, req.SessionIndex); err != nil {
		s.log.Error("updating cursor", "assignment", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFinishAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment ID"})
		return
	}

	if err := s.db.FinishAssignment(r.Context(), id); err != nil {
		s.log.Error("finishing assignment", "assignment", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFindSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	programInstanceID, err := uuid.Parse(q.Get("program_instance"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "program_instance parameter required"})
		return
	}
	week, err := strconv.Atoi(q.Get("week"))
	if err != nil || week < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "week parameter required"})
		return
	}
	order, err := strconv.Atoi(q.Get("order"))
	if err != nil || order < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order parameter required"})
		return
	}

	si, err := s.db.FindSessionInstance(r.Context(), programInstanceID, week, order)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if si == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session instance not found"})
		return
	}
	writeJSON(w, http.StatusOK, si)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	si, err := s.db.GetSessionInstance(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session instance not found"})
		return
	}
	writeJSON(w, http.StatusOK, si)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProgramInstanceID uuid.UUID `json:"program_instance_id"`
		Week              int       `json:"week"`
		SessionOrder      int       `json:"session_order"`
		Name              string    `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.ProgramInstanceID == uuid.Nil || req.Week < 1 || req.SessionOrder < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "program_instance_id, week and session_order required"})
		return
	}

	id, err := s.db.CreateSessionInstance(r.Context(), req.ProgramInstanceID, req.Week, req.SessionOrder, req.Name)
	if err != nil {
		s.log.Error("creating session instance", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	var ex models.ExerciseTemplate
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if ex.ID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise template ID required"})
		return
	}

	id, err := s.db.CreateExerciseInstance(r.Context(), sessionID, ex)
	if err != nil {
		s.log.Error("creating exercise instance", "session", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func (s *Server) handleSubmitPerformance(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	var req struct {
		ExerciseLogs []models.ExerciseLog `json:"exercise_logs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := s.db.SubmitPerformanceAtomic(r.Context(), sessionID, req.ExerciseLogs); err != nil {
		s.log.Error("submitting performance", "session", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client ID"})
		return
	}

	entries, err := s.db.QueryPerformanceLog(r.Context(), clientID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []models.PerformanceLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CoachID  int64           `json:"coach_id"`
		ClientID int64           `json:"client_id"`
		Event    string          `json:"event"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.CoachID == 0 || req.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "coach_id and event required"})
		return
	}

	if err := s.db.InsertNotification(r.Context(), req.CoachID, req.ClientID, req.Event, req.Payload); err != nil {
		s.log.Error("inserting notification", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	coachID, err := strconv.ParseInt(chi.URLParam(r, "coachID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid coach ID"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := s.db.QueryNotifications(r.Context(), coachID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
