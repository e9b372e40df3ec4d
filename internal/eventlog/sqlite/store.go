// Package sqlite implements a persistent eventlog.Log on modernc.org/sqlite
// (pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/codeclaw/internal/eventlog"
	"github.com/flemzord/codeclaw/internal/transcript"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface check.
var _ eventlog.Log = (*Store)(nil)

// Store is a SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at cfg.Path and migrates the schema.
// The database uses a single connection (SQLite serialises writes).
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// One connection so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	for _, pragma := range cfg.pragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements eventlog.Log.
func (s *Store) Append(ctx context.Context, sessionID string, ev transcript.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sqlite: marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?", sessionID,
	).Scan(&last); err != nil {
		return fmt.Errorf("sqlite: read last seq: %w", err)
	}
	if ev.Seq <= last {
		return fmt.Errorf("%w: seq %d after %d", eventlog.ErrOutOfOrder, ev.Seq, last)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO events (session_id, seq, type, payload) VALUES (?, ?, ?, ?)",
		sessionID, ev.Seq, string(ev.Type), string(payload),
	); err != nil {
		return fmt.Errorf("sqlite: append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Events implements eventlog.Log.
func (s *Store) Events(ctx context.Context, sessionID string, afterSeq uint64) ([]transcript.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM events
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC`,
		sessionID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []transcript.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		var ev transcript.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("sqlite: decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: event rows: %w", err)
	}
	return events, nil
}

// Sessions returns the ids of every session with stored events.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT session_id FROM events ORDER BY session_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
