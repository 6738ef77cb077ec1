// Package store persists run summaries and their ranked tables to a local
// SQLite database, so successive runs over growing datasets can be compared
// without re-parsing CSV artifacts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emptyOVO/lyricmr-go/rank"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS runs (
    run_id       INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at   TIMESTAMP NOT NULL,
    input_path   TEXT NOT NULL,
    mode         TEXT NOT NULL,
    participants INTEGER NOT NULL,
    total_songs  INTEGER NOT NULL,
    total_words  INTEGER NOT NULL,
    skipped      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_entries (
    run_id INTEGER NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    tbl    TEXT NOT NULL,
    rank   INTEGER NOT NULL,
    key    TEXT NOT NULL,
    count  INTEGER NOT NULL,
    PRIMARY KEY (run_id, tbl, rank)
);

CREATE INDEX IF NOT EXISTS idx_run_entries_key ON run_entries(tbl, key);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize run store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RunInfo describes one completed run.
type RunInfo struct {
	StartedAt    time.Time
	InputPath    string
	Mode         string
	Participants int
	TotalSongs   int64
	TotalWords   int64
	Skipped      int64
}

// SaveRun records a run and its ranked tables, returning the run id.
func (s *Store) SaveRun(ctx context.Context, info RunInfo, words, artists []rank.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, input_path, mode, participants, total_songs, total_words, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.StartedAt.UTC(), info.InputPath, info.Mode, info.Participants,
		info.TotalSongs, info.TotalWords, info.Skipped)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_entries (run_id, tbl, rank, key, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for tbl, entries := range map[string][]rank.Entry{"word": words, "artist": artists} {
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, runID, tbl, e.Rank, e.Key, e.Count); err != nil {
				return 0, fmt.Errorf("insert %s entry %q: %w", tbl, e.Key, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// TopEntries reads back one table of a stored run in rank order.
func (s *Store) TopEntries(ctx context.Context, runID int64, tbl string) ([]rank.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, key, count FROM run_entries
		WHERE run_id = ? AND tbl = ? ORDER BY rank`, runID, tbl)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rank.Entry
	for rows.Next() {
		var e rank.Entry
		if err := rows.Scan(&e.Rank, &e.Key, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
