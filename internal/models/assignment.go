package models

import (
	"time"

	"github.com/google/uuid"
)

// Cursor is the client's current position in an assigned program. It is the
// single source of truth for "what session should the client see next" and
// is mutated only by the completion engine.
type Cursor struct {
	Week         int  `json:"week"`
	SessionIndex int  `json:"session_index"`
	Finished     bool `json:"finished"`
}

// ProgramAssignment binds a program template to one client. The program
// instance ID keys the client's concrete session instances so that
// re-assigning the same template later starts a fresh history.
type ProgramAssignment struct {
	ID                uuid.UUID `json:"id"`
	ProgramID         uuid.UUID `json:"program_id"`
	ProgramInstanceID uuid.UUID `json:"program_instance_id"`
	ProgramName       string    `json:"program_name"`
	ClientID          int64     `json:"client_id"`
	CoachID           int64     `json:"coach_id"`
	Cursor            Cursor    `json:"cursor"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}
