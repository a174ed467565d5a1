// Package engine implements the session completion protocol: idempotent
// session-instance resolution, all-or-nothing performance submission,
// progression cursor advancement and recap emission.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
)

// TemplateStore resolves assignments and program shapes.
type TemplateStore interface {
	GetAssignment(ctx context.Context, id uuid.UUID) (*models.ProgramAssignment, error)
	GetProgramInstanceID(ctx context.Context, assignmentID uuid.UUID) (uuid.UUID, error)
	GetProgramTemplate(ctx context.Context, programID uuid.UUID) (*models.ProgramTemplate, error)
	HasQueuedAssignment(ctx context.Context, clientID int64, exclude uuid.UUID) (bool, error)
}

// SessionStore is the durable persistence boundary for session instances
// and performance data. SubmitPerformanceAtomic must be all-or-nothing:
// either every entry is persisted and the instance is completed, or nothing
// changed.
type SessionStore interface {
	FindSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int) (*models.SessionInstance, error)
	CreateSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int, name string) (uuid.UUID, error)
	CreateExerciseInstance(ctx context.Context, sessionInstanceID uuid.UUID, ex models.ExerciseTemplate) (uuid.UUID, error)
	SubmitPerformanceAtomic(ctx context.Context, sessionInstanceID uuid.UUID, logs []models.ExerciseLog) error
}

// ProgressionStore persists cursor movement.
type ProgressionStore interface {
	UpdateCursor(ctx context.Context, assignmentID uuid.UUID, week, sessionIndex int) error
	FinishAssignment(ctx context.Context, assignmentID uuid.UUID) error
}

// Notifier delivers one-way events to the supervising coach. Failures are
// logged and swallowed, never surfaced to the completion flow.
type Notifier interface {
	Notify(ctx context.Context, coachID, clientID int64, event string, payload json.RawMessage) error
}

// RecapStore holds the reload-surviving pending recap snapshot.
type RecapStore interface {
	Save(clientID int64, r models.PendingRecap) error
	Load(clientID int64) (*models.PendingRecap, error)
	Dismiss(clientID int64) error
}

// LogBuffer is the capture buffer hook: frozen while a recap is pending so
// session selection can't clobber in-flight state.
type LogBuffer interface {
	Freeze()
	Unfreeze()
}

// CompletionRequest carries everything CompleteSession needs. Logged must
// already be filtered of empty sets (capture.Buffer.Payload does this).
type CompletionRequest struct {
	Assignment   *models.ProgramAssignment
	Program      *models.ProgramTemplate
	Week         int
	SessionOrder int
	Session      models.SessionTemplate
	Logged       []models.ExerciseLog

	// ConfirmUnlogged acknowledges exercises without any logged set; without
	// it, such a session returns an UnloggedError for the caller to confirm.
	ConfirmUnlogged bool
}

// CompletionOutcome reports a successful completion. ProgressionStale marks
// a degraded success: performance data is durable, but the cursor write
// failed and the client view was not advanced.
type CompletionOutcome struct {
	SessionInstanceID uuid.UUID
	Recap             models.PendingRecap
	ProgramFinished   bool
	NextCursor        *models.Cursor
	ProgressionStale  bool
	Message           string
}

// DismissOutcome tells the caller what follows recap dismissal.
type DismissOutcome int

const (
	// DismissNone: there was no pending recap.
	DismissNone DismissOutcome = iota
	// DismissResync: re-fetch assignment and history from the server; the
	// optimistic local state may have drifted and the server wins.
	DismissResync
	// DismissProgramComplete: the program is finished and nothing is queued;
	// show the terminal program-complete screen.
	DismissProgramComplete
)

// Engine orchestrates session completion for one client. All orchestration
// steps run sequentially on the calling goroutine; only the coach
// notification is dispatched asynchronously.
type Engine struct {
	templates   TemplateStore
	sessions    SessionStore
	progression ProgressionStore
	notifier    Notifier
	recaps      RecapStore
	buffer      LogBuffer
	log         *slog.Logger
	clientID    int64

	busy atomic.Bool

	mu      sync.Mutex
	history []models.PerformanceLogEntry
	cursor  *models.Cursor

	// notifyWG tracks in-flight notification goroutines, for tests.
	notifyWG sync.WaitGroup
}

// Config wires an Engine. Buffer may be nil when no capture buffer is
// attached (e.g. server-side use).
type Config struct {
	Templates   TemplateStore
	Sessions    SessionStore
	Progression ProgressionStore
	Notifier    Notifier
	Recaps      RecapStore
	Buffer      LogBuffer
	ClientID    int64
	Log         *slog.Logger
}

// New creates an Engine for one client.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		templates:   cfg.Templates,
		sessions:    cfg.Sessions,
		progression: cfg.Progression,
		notifier:    cfg.Notifier,
		recaps:      cfg.Recaps,
		buffer:      cfg.Buffer,
		clientID:    cfg.ClientID,
		log:         log,
	}
}

// CompleteSession runs the completion protocol. Errors before the atomic
// submission mean nothing happened and the attempt is retryable; once the
// submission commits, the call always returns an outcome, possibly degraded.
func (e *Engine) CompleteSession(ctx context.Context, req CompletionRequest) (*CompletionOutcome, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	// Step 1: confirmation gate. A UX gate, not a correctness invariant.
	if !req.ConfirmUnlogged {
		if unlogged := unloggedExercises(req.Session, req.Logged); len(unlogged) > 0 {
			return nil, &UnloggedError{Exercises: unlogged}
		}
	}

	// Step 2: resolve the owning program instance.
	programInstanceID, err := e.templates.GetProgramInstanceID(ctx, req.Assignment.ID)
	if err != nil {
		return nil, &ResolutionError{Err: err}
	}

	// Step 3: idempotent session-instance resolution. A retry after a crash
	// finds the existing instance instead of duplicating history.
	instance, err := e.sessions.FindSessionInstance(ctx, programInstanceID, req.Week, req.SessionOrder)
	if err != nil {
		return nil, &CreationError{Err: err}
	}
	var sessionInstanceID uuid.UUID
	if instance != nil {
		sessionInstanceID = instance.ID
	} else {
		sessionInstanceID, err = e.sessions.CreateSessionInstance(ctx, programInstanceID, req.Week, req.SessionOrder, req.Session.Name)
		if err != nil {
			return nil, &CreationError{Err: err}
		}
		for _, ex := range req.Session.Exercises {
			// No rollback of the session instance on partial failure here:
			// this sub-step is at-least-once, and the resolution above
			// absorbs the retry.
			if _, err := e.sessions.CreateExerciseInstance(ctx, sessionInstanceID, ex); err != nil {
				return nil, &CreationError{Err: err}
			}
		}
	}

	// Step 4: atomic performance submission. On failure, no local mutation
	// of any kind.
	if err := e.sessions.SubmitPerformanceAtomic(ctx, sessionInstanceID, req.Logged); err != nil {
		return nil, &SubmissionError{Err: err}
	}

	// Performance data is durable from here on. Nothing below may surface
	// as a completion failure.
	outcome := &CompletionOutcome{SessionInstanceID: sessionInstanceID}

	// Step 5: progression advancement, as a separate write. The server-side
	// cursor update is monotonic, so a re-delivered update cannot
	// double-advance.
	sessionsInWeek := len(req.Program.SessionsInWeek(req.Week))
	next, writeCursor := advanceCursor(
		models.Cursor{Week: req.Week, SessionIndex: req.SessionOrder},
		sessionsInWeek, req.Program.TotalWeeks())

	var progressionErr error
	if writeCursor {
		progressionErr = e.progression.UpdateCursor(ctx, req.Assignment.ID, next.Week, next.SessionIndex)
	} else {
		outcome.ProgramFinished = true
		progressionErr = e.progression.FinishAssignment(ctx, req.Assignment.ID)
	}
	if progressionErr != nil {
		e.log.Warn("cursor update failed after committed submission",
			"assignment", req.Assignment.ID, "error", progressionErr)
		outcome.ProgressionStale = true
		outcome.Message = "Your results are saved, but your progress may need a refresh."
	}

	// Step 6: optimistic local reconciliation. History always reflects the
	// durable submission; the local cursor only advances when the server
	// write went through (server truth wins on the next resync).
	e.mu.Lock()
	e.history = append(e.history, models.PerformanceLogEntry{
		Date:         time.Now(),
		Week:         req.Week,
		ProgramName:  req.Assignment.ProgramName,
		SessionName:  req.Session.Name,
		ExerciseLogs: req.Logged,
	})
	if !outcome.ProgressionStale && writeCursor {
		c := next
		e.cursor = &c
		outcome.NextCursor = &c
	}
	e.mu.Unlock()

	// Step 7: fire-and-forget coach notification.
	e.dispatchNotification(ctx, req, sessionInstanceID)

	// Step 8: recap emission.
	queued := false
	if outcome.ProgramFinished {
		queued, err = e.templates.HasQueuedAssignment(ctx, req.Assignment.ClientID, req.Assignment.ID)
		if err != nil {
			e.log.Warn("queued-assignment probe failed", "error", err)
		}
	}
	rec := models.PendingRecap{
		SessionInstanceID:    sessionInstanceID,
		SessionName:          req.Session.Name,
		Week:                 req.Week,
		Session:              req.Session,
		ExerciseLogs:         req.Logged,
		WasProgramFinished:   outcome.ProgramFinished,
		HasNextProgramQueued: queued,
		CompletedAt:          time.Now().UTC(),
	}
	if err := e.recaps.Save(e.clientID, rec); err != nil {
		// The recap just won't survive a reload; completion itself stands.
		e.log.Warn("saving pending recap failed", "error", err)
	}
	if e.buffer != nil {
		e.buffer.Freeze()
	}
	outcome.Recap = rec

	return outcome, nil
}

// PendingRecap returns the stored recap if one survived a restart.
func (e *Engine) PendingRecap() (*models.PendingRecap, error) {
	return e.recaps.Load(e.clientID)
}

// DismissRecap clears the pending recap and tells the caller what to show
// next: the terminal program-complete screen, or a forced resynchronization
// from the server to correct optimistic drift.
func (e *Engine) DismissRecap(ctx context.Context) (DismissOutcome, error) {
	rec, err := e.recaps.Load(e.clientID)
	if err != nil {
		return DismissNone, err
	}
	if rec == nil {
		return DismissNone, nil
	}
	if err := e.recaps.Dismiss(e.clientID); err != nil {
		return DismissNone, err
	}
	if e.buffer != nil {
		e.buffer.Unfreeze()
	}
	if rec.WasProgramFinished && !rec.HasNextProgramQueued {
		return DismissProgramComplete, nil
	}
	return DismissResync, nil
}

// Resync replaces the local optimistic state with server truth.
func (e *Engine) Resync(cursor models.Cursor, history []models.PerformanceLogEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := cursor
	e.cursor = &c
	e.history = history
}

// History returns the client-visible performance log (optimistic view).
func (e *Engine) History() []models.PerformanceLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.PerformanceLogEntry, len(e.history))
	copy(out, e.history)
	return out
}

// Cursor returns the locally known cursor, or nil before the first sync.
func (e *Engine) Cursor() *models.Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor == nil {
		return nil
	}
	c := *e.cursor
	return &c
}

func (e *Engine) dispatchNotification(ctx context.Context, req CompletionRequest, sessionInstanceID uuid.UUID) {
	payload, err := json.Marshal(map[string]any{
		"session_instance_id": sessionInstanceID,
		"session_name":        req.Session.Name,
		"week":                req.Week,
		"program_name":        req.Assignment.ProgramName,
	})
	if err != nil {
		e.log.Warn("marshaling notification payload failed", "error", err)
		return
	}

	coachID := req.Assignment.CoachID
	clientID := req.Assignment.ClientID
	// Detached from the request context: the notification may complete
	// after, or never relative to, the rest of the flow.
	nctx := context.WithoutCancel(ctx)
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		if err := e.notifier.Notify(nctx, coachID, clientID, "sessionCompleted", payload); err != nil {
			e.log.Warn("coach notification failed", "coach", coachID, "error", err)
		}
	}()
}

// WaitNotifications blocks until in-flight notification dispatches finish.
func (e *Engine) WaitNotifications() {
	e.notifyWG.Wait()
}

// unloggedExercises returns the names of session exercises with no logged
// sets in the payload.
func unloggedExercises(session models.SessionTemplate, logged []models.ExerciseLog) []string {
	loggedSets := make(map[uuid.UUID]int, len(logged))
	for _, l := range logged {
		loggedSets[l.ExerciseID] = l.LoggedSets()
	}
	var names []string
	for _, ex := range session.Exercises {
		if loggedSets[ex.ID] == 0 {
			names = append(names, ex.Name)
		}
	}
	return names
}
