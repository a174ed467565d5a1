package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcycle/internal/capture"
	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/stats"
	"github.com/google/uuid"
)

// fakeBackend implements TemplateStore, SessionStore and ProgressionStore
// in memory, with failure injection per step.
type fakeBackend struct {
	assignment        *models.ProgramAssignment
	program           *models.ProgramTemplate
	programInstanceID uuid.UUID
	queued            bool

	instances map[string]*models.SessionInstance
	exercises map[uuid.UUID][]models.ExerciseTemplate
	submitted map[uuid.UUID][]models.ExerciseLog

	cursorWrites []models.Cursor
	finished     bool

	createCalls int

	failResolve  error
	failCreate   error
	failExercise error
	failSubmit   error
	failCursor   error

	submitStarted chan struct{}
	submitRelease chan struct{}
}

func instanceKey(id uuid.UUID, week, order int) string {
	return fmt.Sprintf("%s/%d/%d", id, week, order)
}

func (f *fakeBackend) GetAssignment(_ context.Context, id uuid.UUID) (*models.ProgramAssignment, error) {
	return f.assignment, nil
}

func (f *fakeBackend) GetProgramInstanceID(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	if f.failResolve != nil {
		return uuid.Nil, f.failResolve
	}
	return f.programInstanceID, nil
}

func (f *fakeBackend) GetProgramTemplate(_ context.Context, _ uuid.UUID) (*models.ProgramTemplate, error) {
	return f.program, nil
}

func (f *fakeBackend) HasQueuedAssignment(_ context.Context, _ int64, _ uuid.UUID) (bool, error) {
	return f.queued, nil
}

func (f *fakeBackend) FindSessionInstance(_ context.Context, id uuid.UUID, week, order int) (*models.SessionInstance, error) {
	return f.instances[instanceKey(id, week, order)], nil
}

func (f *fakeBackend) CreateSessionInstance(_ context.Context, id uuid.UUID, week, order int, name string) (uuid.UUID, error) {
	if f.failCreate != nil {
		return uuid.Nil, f.failCreate
	}
	f.createCalls++
	si := &models.SessionInstance{
		ID:                uuid.New(),
		ProgramInstanceID: id,
		Week:              week,
		SessionOrder:      order,
		Name:              name,
		Status:            models.SessionPending,
		CreatedAt:         time.Now(),
	}
	if f.instances == nil {
		f.instances = make(map[string]*models.SessionInstance)
	}
	f.instances[instanceKey(id, week, order)] = si
	return si.ID, nil
}

func (f *fakeBackend) CreateExerciseInstance(_ context.Context, sessionID uuid.UUID, ex models.ExerciseTemplate) (uuid.UUID, error) {
	if f.failExercise != nil {
		return uuid.Nil, f.failExercise
	}
	if f.exercises == nil {
		f.exercises = make(map[uuid.UUID][]models.ExerciseTemplate)
	}
	f.exercises[sessionID] = append(f.exercises[sessionID], ex)
	return uuid.New(), nil
}

func (f *fakeBackend) SubmitPerformanceAtomic(_ context.Context, sessionID uuid.UUID, logs []models.ExerciseLog) error {
	if f.submitStarted != nil {
		f.submitStarted <- struct{}{}
		<-f.submitRelease
	}
	if f.failSubmit != nil {
		return f.failSubmit
	}
	if f.submitted == nil {
		f.submitted = make(map[uuid.UUID][]models.ExerciseLog)
	}
	f.submitted[sessionID] = logs
	for _, si := range f.instances {
		if si.ID == sessionID {
			si.Status = models.SessionCompleted
		}
	}
	return nil
}

func (f *fakeBackend) UpdateCursor(_ context.Context, _ uuid.UUID, week, sessionIndex int) error {
	if f.failCursor != nil {
		return f.failCursor
	}
	f.cursorWrites = append(f.cursorWrites, models.Cursor{Week: week, SessionIndex: sessionIndex})
	return nil
}

func (f *fakeBackend) FinishAssignment(_ context.Context, _ uuid.UUID) error {
	if f.failCursor != nil {
		return f.failCursor
	}
	f.finished = true
	return nil
}

// memRecaps is an in-memory RecapStore.
type memRecaps struct {
	mu    sync.Mutex
	store map[int64]models.PendingRecap
}

func newMemRecaps() *memRecaps { return &memRecaps{store: make(map[int64]models.PendingRecap)} }

func (m *memRecaps) Save(clientID int64, r models.PendingRecap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[clientID] = r
	return nil
}

func (m *memRecaps) Load(clientID int64) (*models.PendingRecap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[clientID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRecaps) Dismiss(clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, clientID)
	return nil
}

// recordingNotifier records notifications and optionally fails.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, _, _ int64, event string, _ json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestBackend() *fakeBackend {
	program := &models.ProgramTemplate{
		ID:   uuid.New(),
		Name: "Base Block",
		Weeks: []models.Week{
			{Number: 1, Sessions: []models.SessionTemplate{
				{ID: uuid.New(), Name: "Full Body", Order: 1, Exercises: []models.ExerciseTemplate{
					{ID: uuid.New(), Name: "Squat", Position: 1, TargetSets: "3", TargetReps: "5"},
					{ID: uuid.New(), Name: "Bench", Position: 2, TargetSets: "3", TargetReps: "8"},
					{ID: uuid.New(), Name: "Row", Position: 3, TargetSets: "3", TargetReps: "10"},
				}},
				{ID: uuid.New(), Name: "Conditioning", Order: 2},
			}},
			{Number: 2, Sessions: []models.SessionTemplate{
				{ID: uuid.New(), Name: "Full Body", Order: 1},
			}},
		},
	}
	return &fakeBackend{
		program:           program,
		programInstanceID: uuid.New(),
		assignment: &models.ProgramAssignment{
			ID:          uuid.New(),
			ProgramID:   program.ID,
			ProgramName: program.Name,
			ClientID:    7,
			CoachID:     3,
			Cursor:      models.Cursor{Week: 1, SessionIndex: 1},
		},
	}
}

func newTestEngine(f *fakeBackend, recaps RecapStore, n Notifier, buf LogBuffer) *Engine {
	if recaps == nil {
		recaps = newMemRecaps()
	}
	if n == nil {
		n = &recordingNotifier{}
	}
	return New(Config{
		Templates:   f,
		Sessions:    f,
		Progression: f,
		Notifier:    n,
		Recaps:      recaps,
		Buffer:      buf,
		ClientID:    7,
	})
}

func fullLogs(session models.SessionTemplate, exercises int) []models.ExerciseLog {
	var logs []models.ExerciseLog
	for i, ex := range session.Exercises {
		if i >= exercises {
			break
		}
		var sets []models.PerformanceEntry
		for s := 1; s <= 3; s++ {
			sets = append(sets, models.PerformanceEntry{SetNumber: s, Reps: "5", Load: "100"})
		}
		logs = append(logs, models.ExerciseLog{ExerciseID: ex.ID, ExerciseName: ex.Name, Sets: sets})
	}
	return logs
}

func completionReq(f *fakeBackend, week, order int, logged []models.ExerciseLog) CompletionRequest {
	session := *f.program.SessionAt(week, order)
	return CompletionRequest{
		Assignment:      f.assignment,
		Program:         f.program,
		Week:            week,
		SessionOrder:    order,
		Session:         session,
		Logged:          logged,
		ConfirmUnlogged: true,
	}
}

// TestCompleteSessionHappyPath walks the full protocol: instance created,
// performance submitted, cursor advanced, recap saved.
func TestCompleteSessionHappyPath(t *testing.T) {
	f := newTestBackend()
	recaps := newMemRecaps()
	n := &recordingNotifier{}
	e := newTestEngine(f, recaps, n, nil)

	session := *f.program.SessionAt(1, 1)
	out, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	if f.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", f.createCalls)
	}
	if len(f.exercises[out.SessionInstanceID]) != 3 {
		t.Errorf("exercise instances = %d, want 3", len(f.exercises[out.SessionInstanceID]))
	}
	if len(f.submitted[out.SessionInstanceID]) != 3 {
		t.Errorf("submitted exercises = %d, want 3", len(f.submitted[out.SessionInstanceID]))
	}
	if len(f.cursorWrites) != 1 || f.cursorWrites[0] != (models.Cursor{Week: 1, SessionIndex: 2}) {
		t.Errorf("cursor writes = %+v, want [{1 2}]", f.cursorWrites)
	}
	if out.ProgramFinished {
		t.Error("program should not be finished")
	}
	if out.NextCursor == nil || out.NextCursor.SessionIndex != 2 {
		t.Errorf("NextCursor = %+v, want session index 2", out.NextCursor)
	}

	rec, err := recaps.Load(7)
	if err != nil || rec == nil {
		t.Fatalf("recap not saved: %v", err)
	}
	if rec.SessionName != "Full Body" || rec.WasProgramFinished {
		t.Errorf("recap = %+v", rec)
	}

	if got := len(e.History()); got != 1 {
		t.Errorf("history entries = %d, want 1", got)
	}

	e.WaitNotifications()
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
}

// TestIdempotentResolution verifies that completing the same (instance,
// week, order) twice reuses the session instance rather than creating a
// second one.
func TestIdempotentResolution(t *testing.T) {
	f := newTestBackend()
	e := newTestEngine(f, nil, nil, nil)

	session := *f.program.SessionAt(1, 1)
	first, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	second, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}

	if first.SessionInstanceID != second.SessionInstanceID {
		t.Errorf("instance IDs differ: %s vs %s", first.SessionInstanceID, second.SessionInstanceID)
	}
	if f.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1 (second run must reuse)", f.createCalls)
	}
	if len(f.instances) != 1 {
		t.Errorf("instances = %d, want 1", len(f.instances))
	}
	e.WaitNotifications()
}

// TestSubmissionFailureNoLocalMutation verifies the atomicity contract on
// the client side: a failed submission leaves no history entry, no cursor
// movement and no recap.
func TestSubmissionFailureNoLocalMutation(t *testing.T) {
	f := newTestBackend()
	f.failSubmit = errors.New("network down")
	recaps := newMemRecaps()
	e := newTestEngine(f, recaps, nil, nil)

	session := *f.program.SessionAt(1, 1)
	out, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if out != nil {
		t.Fatalf("outcome = %+v, want nil", out)
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want SubmissionError", err)
	}

	if len(e.History()) != 0 {
		t.Error("history mutated after failed submission")
	}
	if e.Cursor() != nil {
		t.Error("cursor mutated after failed submission")
	}
	if len(f.cursorWrites) != 0 {
		t.Error("cursor written after failed submission")
	}
	if rec, _ := recaps.Load(7); rec != nil {
		t.Error("recap saved after failed submission")
	}

	// The attempt is retryable: fix the fault and the same call succeeds,
	// reusing the instance created before the failure.
	f.failSubmit = nil
	if _, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3))); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", f.createCalls)
	}
	e.WaitNotifications()
}

// TestResolutionAndCreationErrors verifies the pre-submission error taxonomy.
func TestResolutionAndCreationErrors(t *testing.T) {
	f := newTestBackend()
	f.failResolve = errors.New("assignment vanished")
	e := newTestEngine(f, nil, nil, nil)
	session := *f.program.SessionAt(1, 1)

	_, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %v, want ResolutionError", err)
	}

	f.failResolve = nil
	f.failExercise = errors.New("insert failed")
	_, err = e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	var createErr *CreationError
	if !errors.As(err, &createErr) {
		t.Fatalf("error = %v, want CreationError", err)
	}
	// Bootstrap failed before submission: no performance data was lost.
	if len(f.submitted) != 0 {
		t.Error("performance submitted despite creation failure")
	}
}

// TestUnloggedConfirmationGate verifies step 1: an unconfirmed completion
// with an untouched exercise is bounced back, a confirmed one proceeds.
func TestUnloggedConfirmationGate(t *testing.T) {
	f := newTestBackend()
	e := newTestEngine(f, nil, nil, nil)
	session := *f.program.SessionAt(1, 1)

	req := completionReq(f, 1, 1, fullLogs(session, 2))
	req.ConfirmUnlogged = false
	_, err := e.CompleteSession(context.Background(), req)
	var unlogged *UnloggedError
	if !errors.As(err, &unlogged) {
		t.Fatalf("error = %v, want UnloggedError", err)
	}
	if len(unlogged.Exercises) != 1 || unlogged.Exercises[0] != "Row" {
		t.Errorf("unlogged = %v, want [Row]", unlogged.Exercises)
	}

	req.ConfirmUnlogged = true
	out, err := e.CompleteSession(context.Background(), req)
	if err != nil {
		t.Fatalf("confirmed completion: %v", err)
	}
	if out.SessionInstanceID == uuid.Nil {
		t.Error("missing session instance ID")
	}
	e.WaitNotifications()
}

// TestEndToEndPartialSession is the full 3x3 scenario: two exercises fully
// logged, one untouched, completion after confirmation, stats at 6/9 = 67%.
func TestEndToEndPartialSession(t *testing.T) {
	f := newTestBackend()
	recaps := newMemRecaps()
	e := newTestEngine(f, recaps, nil, nil)
	session := *f.program.SessionAt(1, 1)

	buf := capture.New()
	if err := buf.SelectSession(f.program.SessionsInWeek(1), 0); err != nil {
		t.Fatal(err)
	}
	for _, ex := range session.Exercises[:2] {
		for i := range 3 {
			if err := buf.SetField(ex.ID, i, capture.FieldReps, "8"); err != nil {
				t.Fatal(err)
			}
			if err := buf.SetField(ex.ID, i, capture.FieldLoad, "80"); err != nil {
				t.Fatal(err)
			}
		}
	}
	if !buf.HasUnloggedExercise() {
		t.Fatal("expected an unlogged exercise")
	}

	req := completionReq(f, 1, 1, buf.Payload())
	req.ConfirmUnlogged = false
	if _, err := e.CompleteSession(context.Background(), req); err == nil {
		t.Fatal("expected confirmation gate")
	}

	req.ConfirmUnlogged = true
	out, err := e.CompleteSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	s := stats.Compute(out.Recap.ExerciseLogs, session, nil)
	if s.CompletedSets != 6 {
		t.Errorf("CompletedSets = %d, want 6", s.CompletedSets)
	}
	if s.PlannedSets != 9 {
		t.Errorf("PlannedSets = %d, want 9", s.PlannedSets)
	}
	if s.CompletionRate != 67 {
		t.Errorf("CompletionRate = %d, want 67", s.CompletionRate)
	}
	e.WaitNotifications()
}

// TestProgramCompletion verifies the final session: finished flag set, no
// cursor write, recap flags carried, dismissal routes to the terminal
// screen or to a resync depending on whether another program is queued.
func TestProgramCompletion(t *testing.T) {
	f := newTestBackend()
	recaps := newMemRecaps()
	e := newTestEngine(f, recaps, nil, nil)

	out, err := e.CompleteSession(context.Background(), completionReq(f, 2, 1, nil))
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if !out.ProgramFinished {
		t.Error("ProgramFinished = false, want true")
	}
	if len(f.cursorWrites) != 0 {
		t.Errorf("cursor writes = %+v, want none on completion", f.cursorWrites)
	}
	if !f.finished {
		t.Error("assignment not marked finished")
	}
	if out.NextCursor != nil {
		t.Errorf("NextCursor = %+v, want nil", out.NextCursor)
	}
	if !out.Recap.WasProgramFinished {
		t.Error("recap should carry WasProgramFinished")
	}

	outcome, err := e.DismissRecap(context.Background())
	if err != nil {
		t.Fatalf("DismissRecap: %v", err)
	}
	if outcome != DismissProgramComplete {
		t.Errorf("dismiss outcome = %v, want DismissProgramComplete", outcome)
	}
	e.WaitNotifications()
}

// TestProgramCompletionWithQueuedProgram verifies that a queued next program
// routes dismissal to a resync instead of the terminal screen.
func TestProgramCompletionWithQueuedProgram(t *testing.T) {
	f := newTestBackend()
	f.queued = true
	e := newTestEngine(f, nil, nil, nil)

	out, err := e.CompleteSession(context.Background(), completionReq(f, 2, 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Recap.HasNextProgramQueued {
		t.Error("recap should carry HasNextProgramQueued")
	}

	outcome, err := e.DismissRecap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DismissResync {
		t.Errorf("dismiss outcome = %v, want DismissResync", outcome)
	}
	e.WaitNotifications()
}

// TestDegradedSuccessOnCursorFailure verifies that a failed cursor write
// after a committed submission is a degraded success: outcome returned, no
// error, local cursor not advanced, history kept.
func TestDegradedSuccessOnCursorFailure(t *testing.T) {
	f := newTestBackend()
	f.failCursor = errors.New("timeout")
	e := newTestEngine(f, nil, nil, nil)
	session := *f.program.SessionAt(1, 1)

	out, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if err != nil {
		t.Fatalf("degraded success must not error: %v", err)
	}
	if !out.ProgressionStale {
		t.Error("ProgressionStale = false, want true")
	}
	if out.Message == "" {
		t.Error("degraded success needs a user-facing message")
	}
	if out.NextCursor != nil {
		t.Error("local cursor must not advance on a failed cursor write")
	}
	if e.Cursor() != nil {
		t.Error("engine cursor advanced despite failed write")
	}
	if len(e.History()) != 1 {
		t.Error("history must still record the durable completion")
	}
	e.WaitNotifications()
}

// TestNotificationFailureSwallowed verifies that a failing coach
// notification never degrades the completion.
func TestNotificationFailureSwallowed(t *testing.T) {
	f := newTestBackend()
	n := &recordingNotifier{err: errors.New("webhook 500")}
	e := newTestEngine(f, nil, n, nil)
	session := *f.program.SessionAt(1, 1)

	out, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if out.ProgressionStale {
		t.Error("notification failure must not degrade the outcome")
	}
	e.WaitNotifications()
	if n.count() != 1 {
		t.Errorf("notification attempts = %d, want 1", n.count())
	}
}

// TestBusyGuard verifies that re-entry while a completion is in flight
// returns ErrBusy instead of racing a second attempt.
func TestBusyGuard(t *testing.T) {
	f := newTestBackend()
	f.submitStarted = make(chan struct{})
	f.submitRelease = make(chan struct{})
	e := newTestEngine(f, nil, nil, nil)
	session := *f.program.SessionAt(1, 1)

	done := make(chan error, 1)
	go func() {
		_, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3)))
		done <- err
	}()

	<-f.submitStarted
	if _, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3))); !errors.Is(err, ErrBusy) {
		t.Errorf("re-entry error = %v, want ErrBusy", err)
	}
	close(f.submitRelease)

	if err := <-done; err != nil {
		t.Fatalf("first completion: %v", err)
	}
	e.WaitNotifications()
}

// TestRecapFreezesBuffer verifies the §state-machine interplay: the capture
// buffer is frozen from recap emission until dismissal.
func TestRecapFreezesBuffer(t *testing.T) {
	f := newTestBackend()
	buf := capture.New()
	e := newTestEngine(f, nil, nil, buf)
	session := *f.program.SessionAt(1, 1)

	if err := buf.SelectSession(f.program.SessionsInWeek(1), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3))); err != nil {
		t.Fatal(err)
	}
	if !buf.Frozen() {
		t.Error("buffer not frozen while recap pending")
	}
	if err := buf.SelectSession(f.program.SessionsInWeek(1), 1); err == nil {
		t.Error("frozen buffer accepted a session change")
	}

	if _, err := e.DismissRecap(context.Background()); err != nil {
		t.Fatal(err)
	}
	if buf.Frozen() {
		t.Error("buffer still frozen after dismissal")
	}
	e.WaitNotifications()
}

// TestResyncReplacesLocalState verifies server-wins reconciliation.
func TestResyncReplacesLocalState(t *testing.T) {
	f := newTestBackend()
	e := newTestEngine(f, nil, nil, nil)
	session := *f.program.SessionAt(1, 1)

	if _, err := e.CompleteSession(context.Background(), completionReq(f, 1, 1, fullLogs(session, 3))); err != nil {
		t.Fatal(err)
	}

	serverHistory := []models.PerformanceLogEntry{
		{Week: 1, ProgramName: "Base Block", SessionName: "Full Body"},
		{Week: 1, ProgramName: "Base Block", SessionName: "Conditioning"},
	}
	e.Resync(models.Cursor{Week: 2, SessionIndex: 1}, serverHistory)

	if got := e.Cursor(); got == nil || got.Week != 2 || got.SessionIndex != 1 {
		t.Errorf("cursor after resync = %+v, want week 2 index 1", got)
	}
	if got := len(e.History()); got != 2 {
		t.Errorf("history after resync = %d entries, want 2", got)
	}
	e.WaitNotifications()
}
