package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FindSessionInstance looks up a session instance by its idempotency key
// (program instance, week, order). Returns (nil, nil) when absent.
func (db *DB) FindSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int) (*models.SessionInstance, error) {
	si := &models.SessionInstance{ProgramInstanceID: programInstanceID, Week: week, SessionOrder: order}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, status, created_at, completed_at
		 FROM session_instances
		 WHERE program_instance_id = $1 AND week = $2 AND session_order = $3`,
		programInstanceID, week, order).Scan(&si.ID, &si.Name, &si.Status, &si.CreatedAt, &si.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session instance: %w", err)
	}
	return si, nil
}

// CreateSessionInstance creates a pending session instance. The insert is
// keyed on (program_instance_id, week, session_order); a concurrent or
// retried create resolves to the existing row's ID instead of a duplicate.
func (db *DB) CreateSessionInstance(ctx context.Context, programInstanceID uuid.UUID, week, order int, name string) (uuid.UUID, error) {
	id := uuid.New()
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO session_instances (id, program_instance_id, week, session_order, name)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (program_instance_id, week, session_order) DO NOTHING`,
		id, programInstanceID, week, order, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting session instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err := db.Pool.QueryRow(ctx,
			`SELECT id FROM session_instances
			 WHERE program_instance_id = $1 AND week = $2 AND session_order = $3`,
			programInstanceID, week, order).Scan(&id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving existing session instance: %w", err)
		}
	}
	return id, nil
}

// CreateExerciseInstance snapshots one exercise template's targets under a
// session instance. Idempotent on (session_instance_id, template_id).
func (db *DB) CreateExerciseInstance(ctx context.Context, sessionInstanceID uuid.UUID, ex models.ExerciseTemplate) (uuid.UUID, error) {
	id := uuid.New()
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO exercise_instances
		 (id, session_instance_id, template_id, position, name, target_sets, target_reps, target_load, tempo, rest_sec)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_instance_id, template_id) DO NOTHING`,
		id, sessionInstanceID, ex.ID, ex.Position, ex.Name,
		ex.TargetSets, ex.TargetReps, ex.TargetLoad, ex.Tempo, ex.RestSec)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting exercise instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err := db.Pool.QueryRow(ctx,
			`SELECT id FROM exercise_instances
			 WHERE session_instance_id = $1 AND template_id = $2`,
			sessionInstanceID, ex.ID).Scan(&id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving existing exercise instance: %w", err)
		}
	}
	return id, nil
}

// SubmitPerformanceAtomic persists all logged sets for a session and flips
// its status to completed in one transaction. Either every entry is visible
// and the session is completed, or nothing changed. Resubmission overwrites
// the same set numbers rather than duplicating them.
func (db *DB) SubmitPerformanceAtomic(ctx context.Context, sessionInstanceID uuid.UUID, logs []models.ExerciseLog) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT template_id, id FROM exercise_instances WHERE session_instance_id = $1`,
		sessionInstanceID)
	if err != nil {
		return fmt.Errorf("querying exercise instances: %w", err)
	}
	instanceByTemplate := make(map[uuid.UUID]uuid.UUID)
	for rows.Next() {
		var templateID, instanceID uuid.UUID
		if err := rows.Scan(&templateID, &instanceID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning exercise instance: %w", err)
		}
		instanceByTemplate[templateID] = instanceID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range logs {
		instanceID, ok := instanceByTemplate[l.ExerciseID]
		if !ok {
			return fmt.Errorf("exercise %s has no instance under session %s", l.ExerciseID, sessionInstanceID)
		}
		for _, set := range l.Sets {
			if set.IsEmpty() {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO performance_entries
				 (exercise_instance_id, set_number, reps_achieved, load_achieved, rpe, note)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (exercise_instance_id, set_number) DO UPDATE
				 SET reps_achieved = EXCLUDED.reps_achieved,
				     load_achieved = EXCLUDED.load_achieved,
				     rpe = EXCLUDED.rpe,
				     note = EXCLUDED.note`,
				instanceID, set.SetNumber, set.Reps, set.Load, set.RPE, set.Note); err != nil {
				return fmt.Errorf("inserting performance entry: %w", err)
			}
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE session_instances
		 SET status = 'completed', completed_at = now()
		 WHERE id = $1`,
		sessionInstanceID)
	if err != nil {
		return fmt.Errorf("completing session instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session instance %s not found", sessionInstanceID)
	}

	return tx.Commit(ctx)
}

// GetSessionInstance retrieves a session instance by ID.
func (db *DB) GetSessionInstance(ctx context.Context, id uuid.UUID) (*models.SessionInstance, error) {
	si := &models.SessionInstance{ID: id}
	err := db.Pool.QueryRow(ctx,
		`SELECT program_instance_id, week, session_order, name, status, created_at, completed_at
		 FROM session_instances WHERE id = $1`,
		id).Scan(&si.ProgramInstanceID, &si.Week, &si.SessionOrder, &si.Name, &si.Status,
		&si.CreatedAt, &si.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("querying session instance: %w", err)
	}
	return si, nil
}
