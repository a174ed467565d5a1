package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
)

// QueryPerformanceLog builds the client-visible, append-only performance
// history from completed session instances, oldest first. The ordering is
// stable (completion time, then instance ID) so the previous-week comparison
// always sees the same sequence.
func (db *DB) QueryPerformanceLog(ctx context.Context, clientID int64) ([]models.PerformanceLogEntry, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT si.id, si.completed_at, si.week, p.name, si.name,
		        ei.template_id, ei.name,
		        pe.set_number, pe.reps_achieved, pe.load_achieved, pe.rpe, pe.note
		 FROM assignments a
		 JOIN programs p ON p.id = a.program_id
		 JOIN session_instances si ON si.program_instance_id = a.program_instance_id
		 JOIN exercise_instances ei ON ei.session_instance_id = si.id
		 LEFT JOIN performance_entries pe ON pe.exercise_instance_id = ei.id
		 WHERE a.client_id = $1 AND si.status = 'completed'
		 ORDER BY si.completed_at ASC, si.id, ei.position ASC, pe.set_number ASC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("querying performance log: %w", err)
	}
	defer rows.Close()

	var result []models.PerformanceLogEntry
	var curSession uuid.UUID
	var curExercise uuid.UUID

	for rows.Next() {
		var (
			sessionID   uuid.UUID
			completedAt *time.Time
			week        int
			programName string
			sessionName string
			templateID  uuid.UUID
			exName      string
			setNumber   *int
			reps, load  *string
			rpe, note   *string
		)
		if err := rows.Scan(&sessionID, &completedAt, &week, &programName, &sessionName,
			&templateID, &exName, &setNumber, &reps, &load, &rpe, &note); err != nil {
			return nil, fmt.Errorf("scanning performance log: %w", err)
		}

		if len(result) == 0 || sessionID != curSession {
			entry := models.PerformanceLogEntry{
				Week:        week,
				ProgramName: programName,
				SessionName: sessionName,
			}
			if completedAt != nil {
				entry.Date = *completedAt
			}
			result = append(result, entry)
			curSession = sessionID
			curExercise = uuid.Nil
		}
		entry := &result[len(result)-1]

		if templateID != curExercise {
			entry.ExerciseLogs = append(entry.ExerciseLogs, models.ExerciseLog{
				ExerciseID:   templateID,
				ExerciseName: exName,
			})
			curExercise = templateID
		}

		// LEFT JOIN: exercises without logged sets yield NULL entry columns.
		if setNumber != nil {
			log := &entry.ExerciseLogs[len(entry.ExerciseLogs)-1]
			log.Sets = append(log.Sets, models.PerformanceEntry{
				SetNumber: *setNumber,
				Reps:      deref(reps),
				Load:      deref(load),
				RPE:       deref(rpe),
				Note:      deref(note),
			})
		}
	}
	return result, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
