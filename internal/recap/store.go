// Package recap persists the pending-recap snapshot across client restarts.
// Lifecycle: written right after a successful completion, read back on next
// start if the process died in between, cleared on dismissal or logout.
package recap

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/claude/repcycle/internal/models"
	_ "modernc.org/sqlite"
)

// Store is a small SQLite-backed put/get/delete facade. SQLite rather than a
// plain file so that the write is atomic and a crash mid-save can't leave a
// half-written snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the recap database at dir/recap.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "recap.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening recap db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS pending_recaps (
		client_id INTEGER PRIMARY KEY,
		payload   TEXT NOT NULL,
		saved_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating recap table: %w", err)
	}

	return &Store{db: db}, nil
}

// Put stores raw payload bytes under a client key, replacing any previous
// snapshot (at most one pending recap per client).
func (s *Store) Put(clientID int64, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pending_recaps (client_id, payload) VALUES (?, ?)`,
		clientID, string(payload),
	)
	return err
}

// Get returns the stored payload bytes, or nil when no recap is pending.
func (s *Store) Get(clientID int64) ([]byte, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM pending_recaps WHERE client_id = ?`, clientID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// Delete removes the stored snapshot for a client.
func (s *Store) Delete(clientID int64) error {
	_, err := s.db.Exec(`DELETE FROM pending_recaps WHERE client_id = ?`, clientID)
	return err
}

// Save marshals and stores a pending recap.
func (s *Store) Save(clientID int64, r models.PendingRecap) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling recap: %w", err)
	}
	return s.Put(clientID, data)
}

// Load reads back the pending recap, or nil when none is pending.
func (s *Store) Load(clientID int64) (*models.PendingRecap, error) {
	data, err := s.Get(clientID)
	if err != nil {
		return nil, fmt.Errorf("reading recap: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var r models.PendingRecap
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling recap: %w", err)
	}
	return &r, nil
}

// Dismiss clears the pending recap for a client.
func (s *Store) Dismiss(clientID int64) error {
	return s.Delete(clientID)
}

// Reset drops every stored snapshot. Called on logout: the store survives
// reloads, not accounts.
func (s *Store) Reset() error {
	_, err := s.db.Exec(`DELETE FROM pending_recaps`)
	return err
}

// Close closes the recap database.
func (s *Store) Close() error {
	return s.db.Close()
}
