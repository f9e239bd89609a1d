// Package sessionlog persists finished stream-session accounting to a small
// sqlite database, so operators can answer "who streamed what, how much"
// after the fact. Optional: the daemon only opens it when a path is
// configured.
package sessionlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Session is one finished streaming session.
type Session struct {
	ID         string
	StreamID   int
	Client     string
	Started    time.Time
	Ended      time.Time
	Bytes      uint64
	Packets    uint64
	Overwrites uint64
}

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		stream_id INTEGER NOT NULL,
		client TEXT,
		started INTEGER NOT NULL,
		ended INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		packets INTEGER NOT NULL,
		overwrites INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts (or replaces) one finished session.
func (s *Store) Record(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, stream_id, client, started, ended, bytes, packets, overwrites)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StreamID, sess.Client,
		sess.Started.Unix(), sess.Ended.Unix(),
		sess.Bytes, sess.Packets, sess.Overwrites)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sess.ID, err)
	}
	return nil
}

// Recent returns up to n sessions, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream_id, client, started, ended, bytes, packets, overwrites
		 FROM sessions ORDER BY ended DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		var started, ended int64
		if err := rows.Scan(&sess.ID, &sess.StreamID, &sess.Client, &started, &ended,
			&sess.Bytes, &sess.Packets, &sess.Overwrites); err != nil {
			return nil, err
		}
		sess.Started = time.Unix(started, 0)
		sess.Ended = time.Unix(ended, 0)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
