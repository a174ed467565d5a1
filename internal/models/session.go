package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session instance.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionSkipped   SessionStatus = "skipped"
)

// SessionInstance is the durable record of one concrete execution of a
// session template for a client. Unique on (program instance, week, order);
// lookups on that triple are idempotent. Never deleted.
type SessionInstance struct {
	ID                uuid.UUID     `json:"id"`
	ProgramInstanceID uuid.UUID     `json:"program_instance_id"`
	Week              int           `json:"week"`
	SessionOrder      int           `json:"session_order"`
	Name              string        `json:"name"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// ExerciseInstance snapshots one exercise template's targets at the moment
// the session instance was created, so later template edits don't
// retroactively alter history.
type ExerciseInstance struct {
	ID                uuid.UUID `json:"id"`
	SessionInstanceID uuid.UUID `json:"session_instance_id"`
	TemplateID        uuid.UUID `json:"template_id"`
	Name              string    `json:"name"`
	Position          int       `json:"position"`
	TargetSets        string    `json:"target_sets"`
	TargetReps        string    `json:"target_reps"`
	TargetLoad        string    `json:"target_load"`
	Tempo             string    `json:"tempo,omitempty"`
	RestSec           int       `json:"rest_sec,omitempty"`
}

// PerformanceEntry is one logged set. Fields are free text as entered by
// the client; numeric interpretation happens in the stats layer.
type PerformanceEntry struct {
	SetNumber int    `json:"set_number"`
	Reps      string `json:"reps,omitempty"`
	Load      string `json:"load,omitempty"`
	RPE       string `json:"rpe,omitempty"`
	Note      string `json:"note,omitempty"`
}

// IsEmpty reports whether no field of the set was filled in. Fully empty
// sets are never persisted.
func (e PerformanceEntry) IsEmpty() bool {
	return e.Reps == "" && e.Load == "" && e.RPE == "" && e.Note == ""
}

// ExerciseLog is the logged sets for one exercise, keyed by the exercise
// template ID.
type ExerciseLog struct {
	ExerciseID   uuid.UUID          `json:"exercise_id"`
	ExerciseName string             `json:"exercise_name"`
	Sets         []PerformanceEntry `json:"sets"`
}

// LoggedSets returns the number of non-empty sets.
func (l ExerciseLog) LoggedSets() int {
	n := 0
	for _, s := range l.Sets {
		if !s.IsEmpty() {
			n++
		}
	}
	return n
}
