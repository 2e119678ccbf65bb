// Package profile persists historical per-judge outcome counts in SQLite.
// The bias adjuster prefers these statistics over its hash-derived
// placeholder whenever a judge has recorded history.
package profile

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed judge profile store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the profile database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}

	// WAL keeps concurrent bias-path reads cheap while outcomes are recorded.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize profile schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS judge_outcomes (
		judge_id TEXT NOT NULL,
		outcome  TEXT NOT NULL,
		cases    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (judge_id, outcome)
	);`
	_, err := s.db.Exec(schema)
	return err
}

// RecordOutcome increments the case count for one judge/outcome pair.
func (s *Store) RecordOutcome(ctx context.Context, judgeID, outcome string) error {
	if judgeID == "" || outcome == "" {
		return fmt.Errorf("judge id and outcome are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO judge_outcomes (judge_id, outcome, cases) VALUES (?, ?, 1)
		ON CONFLICT (judge_id, outcome) DO UPDATE SET cases = cases + 1`,
		judgeID, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Stats returns the judge's historical outcome counts. A judge with no
// history yields an empty map and no error.
func (s *Store) Stats(ctx context.Context, judgeID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, cases FROM judge_outcomes WHERE judge_id = ?`, judgeID)
	if err != nil {
		return nil, fmt.Errorf("query judge stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var outcome string
		var cases int
		if err := rows.Scan(&outcome, &cases); err != nil {
			return nil, fmt.Errorf("scan judge stats: %w", err)
		}
		stats[outcome] = cases
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read judge stats: %w", err)
	}
	return stats, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
