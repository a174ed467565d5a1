package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Notification is one entry in a coach's inbox.
type Notification struct {
	ID        int64           `json:"id"`
	CoachID   int64           `json:"coach_id"`
	ClientID  int64           `json:"client_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// InsertNotification appends an event to a coach's inbox.
func (db *DB) InsertNotification(ctx context.Context, coachID, clientID int64, event string, payload json.RawMessage) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO notifications (coach_id, client_id, event, payload) VALUES ($1, $2, $3, $4)`,
		coachID, clientID, event, payload)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// QueryNotifications retrieves a coach's most recent notifications.
func (db *DB) QueryNotifications(ctx context.Context, coachID int64, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, coach_id, client_id, event, payload, created_at
		 FROM notifications
		 WHERE coach_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		coachID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.CoachID, &n.ClientID, &n.Event, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
