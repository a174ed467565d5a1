package models

import (
	"time"

	"github.com/google/uuid"
)

// ExerciseTemplate is one planned exercise inside a session template.
// Targets are coach-authored free text ("4", "8-10", "80kg", "3-1-1").
type ExerciseTemplate struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	TargetSets string    `json:"target_sets"`
	TargetReps string    `json:"target_reps"`
	TargetLoad string    `json:"target_load"`
	Tempo      string    `json:"tempo,omitempty"`
	RestSec    int       `json:"rest_sec,omitempty"`
}

// SessionTemplate is one planned session within a week. Order is 1-based.
type SessionTemplate struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	Order     int                `json:"order"`
	Exercises []ExerciseTemplate `json:"exercises"`
}

// Week holds the ordered sessions planned for one program week.
type Week struct {
	Number   int               `json:"number"`
	Sessions []SessionTemplate `json:"sessions"`
}

// ProgramTemplate is a coach-authored multi-week plan. Immutable once
// assigned: a client's in-flight program must not change shape for weeks
// that already have logged sessions.
type ProgramTemplate struct {
	ID        uuid.UUID `json:"id"`
	CoachID   int64     `json:"coach_id"`
	Name      string    `json:"name"`
	Weeks     []Week    `json:"weeks"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TotalWeeks returns the number of weeks in the program.
func (p *ProgramTemplate) TotalWeeks() int {
	return len(p.Weeks)
}

// SessionsInWeek returns the sessions planned for the given 1-based week
// number, or nil when the week is out of range.
func (p *ProgramTemplate) SessionsInWeek(week int) []SessionTemplate {
	for _, w := range p.Weeks {
		if w.Number == week {
			return w.Sessions
		}
	}
	return nil
}

// SessionAt returns the session at the given 1-based week and order, or nil.
func (p *ProgramTemplate) SessionAt(week, order int) *SessionTemplate {
	for _, s := range p.SessionsInWeek(week) {
		if s.Order == order {
			return &s
		}
	}
	return nil
}
