// Package store provides SQLite-backed persistence for calibration runs
// and their per-source solutions (the gain-table output path).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	ref_freq_hz   REAL NOT NULL,
	num_sources   INTEGER NOT NULL DEFAULT 0,
	notes         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS solutions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	ra_rad      REAL NOT NULL,
	dec_rad     REAL NOT NULL,
	fit_order   INTEGER NOT NULL,
	failed      INTEGER NOT NULL DEFAULT 0,
	chi_squared REAL NOT NULL DEFAULT 0,
	amp_x       REAL NOT NULL,
	amp_y       REAL NOT NULL,
	grad_l      REAL NOT NULL DEFAULT 0,
	grad_m      REAL NOT NULL DEFAULT 0,
	UNIQUE(run_id, source_id)
);
CREATE INDEX IF NOT EXISTS idx_solutions_run ON solutions(run_id);
`

// SolutionRow is one persisted per-source solution record.
type SolutionRow struct {
	RunID      string
	SourceID   string
	RARad      float64
	DecRad     float64
	FitOrder   int
	Failed     bool
	ChiSquared float64
	AmpX       float64
	AmpY       float64
	GradL      float64
	GradM      float64
}

// RunRow describes one calibration run.
type RunRow struct {
	RunID      string
	StartedAt  int64
	RefFreqHz  float64
	NumSources int
	Notes      string
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun inserts the run header row.
func (s *Store) SaveRun(ctx context.Context, run RunRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, ref_freq_hz, num_sources, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt, run.RefFreqHz, run.NumSources, run.Notes)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveSolutions inserts all solution rows for a run in one transaction.
func (s *Store) SaveSolutions(ctx context.Context, rows []SolutionRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO solutions
		 (run_id, source_id, ra_rad, dec_rad, fit_order, failed, chi_squared, amp_x, amp_y, grad_l, grad_m)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		failed := 0
		if row.Failed {
			failed = 1
		}
		if _, err := stmt.ExecContext(ctx,
			row.RunID, row.SourceID, row.RARad, row.DecRad, row.FitOrder,
			failed, row.ChiSquared, row.AmpX, row.AmpY, row.GradL, row.GradM); err != nil {
			return fmt.Errorf("insert solution %s/%s: %w", row.RunID, row.SourceID, err)
		}
	}
	return tx.Commit()
}

// ListSolutions returns all solution rows for a run, ordered as inserted
// (i.e. source-brightness order).
func (s *Store) ListSolutions(ctx context.Context, runID string) ([]SolutionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source_id, ra_rad, dec_rad, fit_order, failed, chi_squared, amp_x, amp_y, grad_l, grad_m
		 FROM solutions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query solutions: %w", err)
	}
	defer rows.Close()

	var out []SolutionRow
	for rows.Next() {
		var row SolutionRow
		var failed int
		if err := rows.Scan(&row.RunID, &row.SourceID, &row.RARad, &row.DecRad, &row.FitOrder,
			&failed, &row.ChiSquared, &row.AmpX, &row.AmpY, &row.GradL, &row.GradM); err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		row.Failed = failed != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetRun returns a run header by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRow, error) {
	var run RunRow
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, ref_freq_hz, num_sources, notes FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.StartedAt, &run.RefFreqHz, &run.NumSources, &run.Notes)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}
