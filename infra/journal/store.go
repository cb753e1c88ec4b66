// Package journal keeps a local SQLite record of boot runs so an operator
// can see how far the last boots got.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meshnode/node"

	_ "modernc.org/sqlite"
)

var _ node.Journal = (*Store)(nil)

var schema = []string{`
CREATE TABLE IF NOT EXISTS boot_events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  INTEGER NOT NULL,
	at      INTEGER NOT NULL,
	kind    TEXT    NOT NULL,
	phase   INTEGER NOT NULL,
	stage   TEXT    NOT NULL DEFAULT '',
	detail  TEXT    NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS boot_events_run ON boot_events (run_id)`,
}

// Entry is a recorded event with the boot run it belongs to.
type Entry struct {
	RunID int64
	node.Event
}

// Store is the boot journal.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	runID int64
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply journal schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends ev to the current run. A run_started event opens a new run.
func (s *Store) Record(ctx context.Context, ev node.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Kind == node.EventRunStarted || s.runID == 0 {
		var last int64
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(run_id), 0) FROM boot_events`).Scan(&last); err != nil {
			return fmt.Errorf("next run id: %w", err)
		}
		s.runID = last + 1
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boot_events (run_id, at, kind, phase, stage, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID, ev.Time.UnixNano(), string(ev.Kind), int(ev.Phase), ev.Stage, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert boot event: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest events, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, kind, phase, stage, detail FROM (
			SELECT id, run_id, at, kind, phase, stage, detail
			FROM boot_events ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query boot events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			at    int64
			kind  string
			phase int
		)
		if err := rows.Scan(&e.RunID, &at, &kind, &phase, &e.Stage, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan boot event: %w", err)
		}
		e.Time = time.Unix(0, at)
		e.Kind = node.EventKind(kind)
		e.Phase = node.Phase(phase)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boot events: %w", err)
	}
	return out, nil
}
