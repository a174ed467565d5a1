package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingRecap is the snapshot of a just-completed session awaiting user
// dismissal. At most one is in flight per client, and its storage must
// survive a process restart: if the client restarts while a recap is
// pending, it is re-displayed exactly as written before anything else.
type PendingRecap struct {
	SessionInstanceID    uuid.UUID       `json:"session_instance_id"`
	SessionName          string          `json:"session_name"`
	Week                 int             `json:"week"`
	Session              SessionTemplate `json:"session"`
	ExerciseLogs         []ExerciseLog   `json:"exercise_logs"`
	WasProgramFinished   bool            `json:"was_program_finished"`
	HasNextProgramQueued bool            `json:"has_next_program_queued"`
	CompletedAt          time.Time       `json:"completed_at"`
}
