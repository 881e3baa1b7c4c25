// Package store keeps experiment results in the SQLite database shared by
// every awtool command.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	// ErrNoResults is returned when a query selects no result rows.
	ErrNoResults = errors.New("no results")
	// ErrNotFound is returned for lookups of a single missing row.
	ErrNotFound = errors.New("not found")
	// ErrNotAdaptive is returned when a batched result is stored in a
	// results table without a batch column.
	ErrNotAdaptive = errors.New("results table is not adaptive")
)

// NoSeed is reported by BestSeeds when no row has a usable error.
const NoSeed = "-1"

// Store wraps the results database
type Store struct {
	db       *sql.DB
	adaptive bool
	pretend  io.Writer
}

// execer is satisfied by *sql.DB, *sql.Tx and the pretend printer.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serialises writers the way the sqlite file lock would
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetPretend makes every write print its SQL to w instead of executing it.
// A nil writer restores normal operation.
func (s *Store) SetPretend(w io.Writer) {
	s.pretend = w
}

// Adaptive reports whether results carry a batch column.
func (s *Store) Adaptive() bool {
	return s.adaptive
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS submissions (
			batch_id TEXT NOT NULL,
			name TEXT NOT NULL,
			command TEXT NOT NULL,
			dataset TEXT,
			strategy TEXT,
			generation TEXT,
			seed TEXT,
			status TEXT NOT NULL,
			output TEXT,
			submitted_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_submissions_batch ON submissions(batch_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return s.detectAdaptive()
}

func (s *Store) detectAdaptive() error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('results')`)
	if err != nil {
		return fmt.Errorf("failed to inspect results table: %w", err)
	}
	defer rows.Close()

	s.adaptive = false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == "batch" {
			s.adaptive = true
		}
	}
	return rows.Err()
}

// CreateTables creates the datasets, experiments and results tables. In
// adaptive mode results carry a batch column that is part of their key.
func (s *Store) CreateTables(ctx context.Context, adaptive bool) error {
	attributes := `dataset TEXT NOT NULL, strategy TEXT NOT NULL, generation TEXT NOT NULL, seed INTEGER NOT NULL,
			num_trajectories INTEGER, num_evaluations INTEGER, total_evaluations INTEGER,
			memout_evaluations INTEGER, timeout_evaluations INTEGER,
			error REAL, test_error REAL, full_cv_error REAL, configuration TEXT`
	unique := "dataset, strategy, generation, seed"
	if adaptive {
		attributes += ", batch INTEGER"
		unique += ", batch"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS datasets (name TEXT PRIMARY KEY, train TEXT, test TEXT)`,
		`CREATE TABLE IF NOT EXISTS experiments (
			dataset TEXT NOT NULL, strategy TEXT NOT NULL, generation TEXT NOT NULL,
			FOREIGN KEY(dataset) REFERENCES datasets(name),
			PRIMARY KEY(dataset, strategy, generation))`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS results (%s,
			UNIQUE(%s) ON CONFLICT REPLACE)`, attributes, unique),
	}

	err := s.withTx(ctx, func(ex execer) error {
		for _, stmt := range statements {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create tables: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.pretend == nil {
		return s.detectAdaptive()
	}
	s.adaptive = adaptive
	return nil
}

// withTx runs fn inside a transaction, or against the SQL printer in
// pretend mode.
func (s *Store) withTx(ctx context.Context, fn func(ex execer) error) error {
	if s.pretend != nil {
		return fn(sqlPrinter{w: s.pretend})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type sqlPrinter struct {
	w io.Writer
}

func (p sqlPrinter) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	_, err := fmt.Fprintln(p.w, RenderSQL(query, args...)+";")
	return driver.RowsAffected(0), err
}
