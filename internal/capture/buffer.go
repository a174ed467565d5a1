// Package capture holds the editable per-set log buffer for the session a
// client is currently executing. The buffer lives on the client runtime and
// is only ever touched from its single control goroutine.
package capture

import (
	"errors"
	"fmt"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
)

// Field names the editable columns of a logged set.
type Field string

const (
	FieldReps Field = "reps"
	FieldLoad Field = "load"
	FieldRPE  Field = "rpe"
	FieldNote Field = "note"
)

// ErrFrozen is returned while a pending recap is on screen: the buffer must
// not be reset or repopulated from the (already advanced) cursor until the
// recap is dismissed.
var ErrFrozen = errors.New("capture buffer is frozen while a recap is pending")

// ErrNoSession is returned when no session has been selected yet.
var ErrNoSession = errors.New("no session selected")

// Buffer is the in-memory log buffer for one session. Selecting a session
// resets it: stale state from a different session is never reused.
type Buffer struct {
	session *models.SessionTemplate
	sets    map[uuid.UUID][]models.PerformanceEntry
	frozen  bool
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// SelectSession resets the buffer to the session at the given index of
// weekSessions, with one empty slot per planned set of each exercise.
// Errors while frozen instead of clobbering in-flight completion state.
func (b *Buffer) SelectSession(weekSessions []models.SessionTemplate, index int) error {
	if b.frozen {
		return ErrFrozen
	}
	if index < 0 || index >= len(weekSessions) {
		return fmt.Errorf("session index %d out of range (have %d sessions)", index, len(weekSessions))
	}
	s := weekSessions[index]
	b.session = &s
	b.sets = make(map[uuid.UUID][]models.PerformanceEntry, len(s.Exercises))
	for _, ex := range s.Exercises {
		n := models.ParseSetCount(ex.TargetSets)
		slots := make([]models.PerformanceEntry, n)
		for i := range slots {
			slots[i].SetNumber = i + 1
		}
		b.sets[ex.ID] = slots
	}
	return nil
}

// Session returns the currently selected session template, or nil.
func (b *Buffer) Session() *models.SessionTemplate {
	return b.session
}

// SetField records one value for one set of one exercise. The slot list
// grows as needed; no validation is applied beyond the field name.
func (b *Buffer) SetField(exerciseID uuid.UUID, setIndex int, field Field, value string) error {
	if b.session == nil {
		return ErrNoSession
	}
	slots, ok := b.sets[exerciseID]
	if !ok {
		return fmt.Errorf("exercise %s is not part of the selected session", exerciseID)
	}
	if setIndex < 0 {
		return fmt.Errorf("set index %d out of range", setIndex)
	}
	for len(slots) <= setIndex {
		slots = append(slots, models.PerformanceEntry{SetNumber: len(slots) + 1})
	}
	switch field {
	case FieldReps:
		slots[setIndex].Reps = value
	case FieldLoad:
		slots[setIndex].Load = value
	case FieldRPE:
		slots[setIndex].RPE = value
	case FieldNote:
		slots[setIndex].Note = value
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	b.sets[exerciseID] = slots
	return nil
}

// HasUnloggedExercise reports whether any exercise of the selected session
// has zero sets with a non-empty field. Used to gate a confirmation prompt
// before completion, not to block it.
func (b *Buffer) HasUnloggedExercise() bool {
	if b.session == nil {
		return false
	}
	for _, ex := range b.session.Exercises {
		if countLogged(b.sets[ex.ID]) == 0 {
			return true
		}
	}
	return false
}

// UnloggedExercises returns the names of exercises with no logged sets.
func (b *Buffer) UnloggedExercises() []string {
	if b.session == nil {
		return nil
	}
	var names []string
	for _, ex := range b.session.Exercises {
		if countLogged(b.sets[ex.ID]) == 0 {
			names = append(names, ex.Name)
		}
	}
	return names
}

// Payload returns the logged data for submission, in exercise plan order.
// Fully empty sets are dropped silently; exercises with nothing logged are
// omitted entirely.
func (b *Buffer) Payload() []models.ExerciseLog {
	if b.session == nil {
		return nil
	}
	var logs []models.ExerciseLog
	for _, ex := range b.session.Exercises {
		var kept []models.PerformanceEntry
		for _, set := range b.sets[ex.ID] {
			if !set.IsEmpty() {
				kept = append(kept, set)
			}
		}
		if len(kept) > 0 {
			logs = append(logs, models.ExerciseLog{
				ExerciseID:   ex.ID,
				ExerciseName: ex.Name,
				Sets:         kept,
			})
		}
	}
	return logs
}

// Freeze locks the buffer for the recap-pending window.
func (b *Buffer) Freeze() { b.frozen = true }

// Unfreeze unlocks the buffer after recap dismissal.
func (b *Buffer) Unfreeze() { b.frozen = false }

// Frozen reports whether the buffer is locked.
func (b *Buffer) Frozen() bool { return b.frozen }

func countLogged(slots []models.PerformanceEntry) int {
	n := 0
	for _, s := range slots {
		if !s.IsEmpty() {
			n++
		}
	}
	return n
}
