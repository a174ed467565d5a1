package models

import "time"

// PerformanceLogEntry is one completed session in the client-visible
// history. The history is append-only: entries are never mutated or
// reordered, which is what makes the previous-week comparison stable.
type PerformanceLogEntry struct {
	Date         time.Time     `json:"date"`
	Week         int           `json:"week"`
	ProgramName  string        `json:"program_name"`
	SessionName  string        `json:"session_name"`
	ExerciseLogs []ExerciseLog `json:"exercise_logs"`
}
