package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qupredict/qupredict/internal/domain"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS state (
    key        TEXT PRIMARY KEY,
    value      TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// SQLiteStateStore implements StateStore on a local SQLite file (pure Go
// driver, no CGo). One file holds one user's client state.
type SQLiteStateStore struct {
	db *sql.DB
}

// OpenSQLiteState opens (creating if needed) the state database at path.
func OpenSQLiteState(path string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("client: open state db %s: %w", path, err)
	}
	// Local single-user file; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("client: init state schema: %w", err)
	}
	return &SQLiteStateStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or domain.ErrNotFound.
func (s *SQLiteStateStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("client: state key %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("client: state get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("client: state set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; missing keys are ignored.
func (s *SQLiteStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("client: state delete %s: %w", key, err)
	}
	return nil
}
