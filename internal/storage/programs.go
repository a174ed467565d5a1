package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateProgram inserts a program template with all its sessions and exercises.
func (db *DB) CreateProgram(ctx context.Context, p *models.ProgramTemplate) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO programs (id, coach_id, name) VALUES ($1, $2, $3)`,
		p.ID, p.CoachID, p.Name); err != nil {
		return fmt.Errorf("inserting program: %w", err)
	}

	for _, w := range p.Weeks {
		for _, s := range w.Sessions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO program_sessions (id, program_id, week, session_order, name)
				 VALUES ($1, $2, $3, $4, $5)`,
				s.ID, p.ID, w.Number, s.Order, s.Name); err != nil {
				return fmt.Errorf("inserting session %q: %w", s.Name, err)
			}
			for _, ex := range s.Exercises {
				if _, err := tx.Exec(ctx,
					`INSERT INTO program_exercises
					 (id, session_id, position, name, target_sets, target_reps, target_load, tempo, rest_sec)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					ex.ID, s.ID, ex.Position, ex.Name,
					ex.TargetSets, ex.TargetReps, ex.TargetLoad, ex.Tempo, ex.RestSec); err != nil {
					return fmt.Errorf("inserting exercise %q: %w", ex.Name, err)
				}
			}
		}
	}

	return tx.Commit(ctx)
}

// GetProgramTemplate loads a full program template with weeks ordered and
// sessions/exercises in plan order.
func (db *DB) GetProgramTemplate(ctx context.Context, programID uuid.UUID) (*models.ProgramTemplate, error) {
	p := &models.ProgramTemplate{ID: programID}
	err := db.Pool.QueryRow(ctx,
		`SELECT coach_id, name, created_at FROM programs WHERE id = $1`,
		programID).Scan(&p.CoachID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("querying program: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id, week, session_order, name
		 FROM program_sessions
		 WHERE program_id = $1
		 ORDER BY week ASC, session_order ASC`,
		programID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	weekIdx := make(map[int]int)
	sessionIdx := make(map[uuid.UUID][2]int)
	for rows.Next() {
		var s models.SessionTemplate
		var week int
		if err := rows.Scan(&s.ID, &week, &s.Order, &s.Name); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		wi, ok := weekIdx[week]
		if !ok {
			p.Weeks = append(p.Weeks, models.Week{Number: week})
			wi = len(p.Weeks) - 1
			weekIdx[week] = wi
		}
		p.Weeks[wi].Sessions = append(p.Weeks[wi].Sessions, s)
		sessionIdx[s.ID] = [2]int{wi, len(p.Weeks[wi].Sessions) - 1}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exRows, err := db.Pool.Query(ctx,
		`SELECT e.id, e.session_id, e.position, e.name,
		        e.target_sets, e.target_reps, e.target_load, e.tempo, e.rest_sec
		 FROM program_exercises e
		 JOIN program_sessions s ON s.id = e.session_id
		 WHERE s.program_id = $1
		 ORDER BY e.position ASC`,
		programID)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var ex models.ExerciseTemplate
		var sessionID uuid.UUID
		if err := exRows.Scan(&ex.ID, &sessionID, &ex.Position, &ex.Name,
			&ex.TargetSets, &ex.TargetReps, &ex.TargetLoad, &ex.Tempo, &ex.RestSec); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		if loc, ok := sessionIdx[sessionID]; ok {
			s := &p.Weeks[loc[0]].Sessions[loc[1]]
			s.Exercises = append(s.Exercises, ex)
		}
	}
	return p, exRows.Err()
}

// CreateAssignment binds a program to a client and initializes the cursor to
// week 1, session 1. A fresh program instance ID keys the client's session
// history for this cycle.
func (db *DB) CreateAssignment(ctx context.Context, programID uuid.UUID, clientID, coachID int64) (*models.ProgramAssignment, error) {
	a := &models.ProgramAssignment{
		ID:                uuid.New(),
		ProgramID:         programID,
		ProgramInstanceID: uuid.New(),
		ClientID:          clientID,
		CoachID:           coachID,
		Cursor:            models.Cursor{Week: 1, SessionIndex: 1},
	}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO assignments (id, program_id, program_instance_id, client_id, coach_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		a.ID, a.ProgramID, a.ProgramInstanceID, a.ClientID, a.CoachID).Scan(&a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting assignment: %w", err)
	}
	return a, nil
}

// GetAssignment retrieves an assignment with its cursor and program name.
func (db *DB) GetAssignment(ctx context.Context, id uuid.UUID) (*models.ProgramAssignment, error) {
	a := &models.ProgramAssignment{ID: id}
	err := db.Pool.QueryRow(ctx,
		`SELECT a.program_id, a.program_instance_id, p.name, a.client_id, a.coach_id,
		        a.current_week, a.current_session_index, a.finished, a.created_at
		 FROM assignments a
		 JOIN programs p ON p.id = a.program_id
		 WHERE a.id = $1`,
		id).Scan(&a.ProgramID, &a.ProgramInstanceID, &a.ProgramName, &a.ClientID, &a.CoachID,
		&a.Cursor.Week, &a.Cursor.SessionIndex, &a.Cursor.Finished, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("querying assignment: %w", err)
	}
	return a, nil
}

// GetProgramInstanceID resolves the owning program instance for an assignment.
func (db *DB) GetProgramInstanceID(ctx context.Context, assignmentID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx,
		`SELECT program_instance_id FROM assignments WHERE id = $1`,
		assignmentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("assignment %s not found", assignmentID)
		}
		return uuid.Nil, fmt.Errorf("querying program instance: %w", err)
	}
	return id, nil
}

// UpdateCursor writes an absolute cursor position. The update is monotonic:
// positions at or behind the stored cursor are silently ignored, so a
// re-delivered update cannot move the cursor backwards or double-advance.
func (db *DB) UpdateCursor(ctx context.Context, assignmentID uuid.UUID, week, sessionIndex int) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE assignments
		 SET current_week = $2, current_session_index = $3
		 WHERE id = $1
		   AND NOT finished
		   AND (current_week < $2 OR (current_week = $2 AND current_session_index < $3))`,
		assignmentID, week, sessionIndex)
	if err != nil {
		return fmt.Errorf("updating cursor: %w", err)
	}
	return nil
}

// FinishAssignment marks the program finished. The cursor is left untouched:
// there is nothing further to point to.
func (db *DB) FinishAssignment(ctx context.Context, assignmentID uuid.UUID) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE assignments SET finished = TRUE WHERE id = $1`,
		assignmentID)
	if err != nil {
		return fmt.Errorf("finishing assignment: %w", err)
	}
	return nil
}

// HasQueuedAssignment reports whether the client has another unfinished
// assignment besides the given one.
func (db *DB) HasQueuedAssignment(ctx context.Context, clientID int64, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM assignments
		   WHERE client_id = $1 AND id <> $2 AND NOT finished
		 )`,
		clientID, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying queued assignments: %w", err)
	}
	return exists, nil
}
