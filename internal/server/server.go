// Package server exposes the repcycle REST API: program authoring and
// assignment for coaches, and the session completion endpoints the client
// runtime drives.
package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/repcycle/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db     *storage.DB
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:     db,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Read endpoints (no auth; tsnet handles network access)
	s.router.Get("/api/v1/programs/{id}", s.handleGetProgram)
	s.router.Get("/api/v1/assignments/{id}", s.handleGetAssignment)
	s.router.Get("/api/v1/clients/{clientID}/assignments/queued", s.handleQueuedAssignments)
	s.router.Get("/api/v1/clients/{clientID}/history", s.handleHistory)
	s.router.Get("/api/v1/sessions", s.handleFindSession)
	s.router.Get("/api/v1/sessions/{id}", s.handleGetSession)
	s.router.Get("/api/v1/coaches/{coachID}/notifications", s.handleListNotifications)

	// Mutations (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/programs", s.handleCreateProgram)
		r.Post("/api/v1/assignments", s.handleCreateAssignment)
		r.Put("/api/v1/assignments/{id}/cursor", s.handleUpdateCursor)
		r.Post("/api/v1/assignments/{id}/finish", s.handleFinishAssignment)
		r.Post("/api/v1/sessions", s.handleCreateSession)
		r.Post("/api/v1/sessions/{id}/exercises", s.handleCreateExercise)
		r.Post("/api/v1/sessions/{id}/performance", s.handleSubmitPerformance)
		r.Post("/api/v1/notifications", s.handleCreateNotification)
	})
}
