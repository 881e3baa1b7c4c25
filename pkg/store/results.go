package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

const resultColumns = `dataset, strategy, generation, seed, num_trajectories, num_evaluations,
	total_evaluations, memout_evaluations, timeout_evaluations, error, test_error,
	full_cv_error, configuration`

// Aggregate summarises the runs of one strategy/generation on a dataset
type Aggregate struct {
	models.ExperimentKey
	Runs         int      `json:"runs"`
	Evaluations  int64    `json:"evaluations"`
	AvgError     *float64 `json:"avgError"`
	MinError     *float64 `json:"minError"`
	MaxError     *float64 `json:"maxError"`
	AvgTestError *float64 `json:"avgTestError"`
	MinTestError *float64 `json:"minTestError"`
	MaxTestError *float64 `json:"maxTestError"`
}

// InsertDatasets registers datasets.
func (s *Store) InsertDatasets(ctx context.Context, datasets []models.Dataset) error {
	return s.withTx(ctx, func(ex execer) error {
		for _, d := range datasets {
			if _, err := ex.ExecContext(ctx,
				`INSERT OR REPLACE INTO datasets (name, train, test) VALUES (?, ?, ?)`,
				d.Name, d.Train, d.Test); err != nil {
				return fmt.Errorf("failed to insert dataset %s: %w", d.Name, err)
			}
		}
		return nil
	})
}

// InsertExperiments registers dataset/strategy/generation combinations.
func (s *Store) InsertExperiments(ctx context.Context, keys []models.ExperimentKey) error {
	return s.withTx(ctx, func(ex execer) error {
		for _, k := range keys {
			if _, err := ex.ExecContext(ctx,
				`INSERT OR IGNORE INTO experiments (dataset, strategy, generation) VALUES (?, ?, ?)`,
				k.Dataset, k.Strategy, k.Generation); err != nil {
				return fmt.Errorf("failed to insert experiment %s: %w", k.Name(), err)
			}
		}
		return nil
	})
}

// UpsertResults inserts results, replacing rows with the same key. A row
// that already has a full CV error keeps it unless the new result has one.
// Batched results need an adaptive store.
func (s *Store) UpsertResults(ctx context.Context, results []models.Result) error {
	return s.withTx(ctx, func(ex execer) error {
		for _, r := range results {
			if r.Batch != nil && !s.adaptive {
				return fmt.Errorf("result %s has batch %d but the results table has no batch column: %w",
					r.RunName(r.Seed), *r.Batch, ErrNotAdaptive)
			}
			query, args := s.upsertStatement(r)
			if _, err := ex.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert result %s: %w", r.RunName(r.Seed), err)
			}
		}
		return nil
	})
}

func (s *Store) upsertStatement(r models.Result) (string, []any) {
	columns := resultColumns
	placeholders := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		coalesce(?, (SELECT full_cv_error FROM results
			WHERE dataset = ? AND strategy = ? AND generation = ? AND seed = ?%s)), ?`

	args := []any{
		r.Dataset, r.Strategy, r.Generation, r.Seed,
		r.NumTrajectories, r.NumEvaluations, r.TotalEvaluations,
		r.MemoutEvaluations, r.TimeoutEvaluations,
		nullFloat(r.Error), nullFloat(r.TestError),
		nullFloat(r.FullCVError), r.Dataset, r.Strategy, r.Generation, r.Seed,
	}

	batchFilter := ""
	if s.adaptive {
		batchFilter = " AND batch IS ?"
		args = append(args, nullInt(r.Batch))
	}
	args = append(args, r.Configuration)
	if s.adaptive {
		columns += ", batch"
		placeholders += ", ?"
		args = append(args, nullInt(r.Batch))
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO results (%s) VALUES (%s)`,
		columns, fmt.Sprintf(placeholders, batchFilter))
	return query, args
}

// Results returns every run of key ordered by seed.
func (s *Store) Results(ctx context.Context, key models.ExperimentKey) ([]models.Result, error) {
	results, err := s.selectResults(ctx,
		`WHERE dataset = ? AND strategy = ? AND generation = ? ORDER BY seed`+s.batchOrder(),
		key.Dataset, key.Strategy, key.Generation)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", key.Name(), ErrNoResults)
	}
	return results, nil
}

// DatasetResults returns every run on a dataset.
func (s *Store) DatasetResults(ctx context.Context, dataset string) ([]models.Result, error) {
	results, err := s.selectResults(ctx,
		`WHERE dataset = ? ORDER BY strategy, generation, seed`+s.batchOrder(), dataset)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", dataset, ErrNoResults)
	}
	return results, nil
}

// GenerationResults returns every run that used a generation.
func (s *Store) GenerationResults(ctx context.Context, generation string) ([]models.Result, error) {
	return s.selectResults(ctx,
		`WHERE generation = ? ORDER BY dataset, strategy, seed`+s.batchOrder(), generation)
}

// TopResults returns the n runs of key with the lowest error.
func (s *Store) TopResults(ctx context.Context, key models.ExperimentKey, n int) ([]models.Result, error) {
	return s.selectResults(ctx,
		`WHERE dataset = ? AND strategy = ? AND generation = ? AND error IS NOT NULL
		 ORDER BY error LIMIT ?`,
		key.Dataset, key.Strategy, key.Generation, n)
}

// BestSeeds returns the seeds with the lowest error and the lowest test
// error, or NoSeed when no run has one.
func (s *Store) BestSeeds(ctx context.Context, key models.ExperimentKey) (bestError, bestTest string, err error) {
	if bestError, err = s.bestSeed(ctx, key, "error"); err != nil {
		return "", "", err
	}
	if bestTest, err = s.bestSeed(ctx, key, "test_error"); err != nil {
		return "", "", err
	}
	return bestError, bestTest, nil
}

func (s *Store) bestSeed(ctx context.Context, key models.ExperimentKey, column string) (string, error) {
	var seed string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT seed FROM results
		WHERE dataset = ? AND strategy = ? AND generation = ? AND %[1]s IS NOT NULL
		ORDER BY %[1]s LIMIT 1`, column),
		key.Dataset, key.Strategy, key.Generation).Scan(&seed)
	if errors.Is(err, sql.ErrNoRows) {
		return NoSeed, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query best %s: %w", column, err)
	}
	return seed, nil
}

// Aggregates summarises a dataset per strategy and generation.
func (s *Store) Aggregates(ctx context.Context, dataset string) ([]Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, generation, count(*), coalesce(sum(num_evaluations), 0),
			avg(error), min(error), max(error),
			avg(test_error), min(test_error), max(test_error)
		FROM results WHERE dataset = ?
		GROUP BY strategy, generation
		ORDER BY strategy, generation`, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", dataset, err)
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		a := Aggregate{ExperimentKey: models.ExperimentKey{Dataset: dataset}}
		var stats [6]sql.NullFloat64
		if err := rows.Scan(&a.Strategy, &a.Generation, &a.Runs, &a.Evaluations,
			&stats[0], &stats[1], &stats[2], &stats[3], &stats[4], &stats[5]); err != nil {
			return nil, err
		}
		a.AvgError, a.MinError, a.MaxError = fromNull(stats[0]), fromNull(stats[1]), fromNull(stats[2])
		a.AvgTestError, a.MinTestError, a.MaxTestError = fromNull(stats[3]), fromNull(stats[4]), fromNull(stats[5])
		out = append(out, a)
	}
	return out, rows.Err()
}

// ExperimentKeys lists the combinations that have results, optionally for
// one dataset.
func (s *Store) ExperimentKeys(ctx context.Context, dataset string) ([]models.ExperimentKey, error) {
	query := `SELECT DISTINCT dataset, strategy, generation FROM results`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY dataset, strategy, generation`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var keys []models.ExperimentKey
	for rows.Next() {
		var k models.ExperimentKey
		if err := rows.Scan(&k.Dataset, &k.Strategy, &k.Generation); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Datasets returns the dataset registry.
func (s *Store) Datasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, train, test FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []models.Dataset
	for rows.Next() {
		var d models.Dataset
		if err := rows.Scan(&d.Name, &d.Train, &d.Test); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TrainFile returns the training file registered for dataset.
func (s *Store) TrainFile(ctx context.Context, dataset string) (string, error) {
	var train string
	err := s.db.QueryRowContext(ctx, `SELECT train FROM datasets WHERE name = ?`, dataset).Scan(&train)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("dataset %s: %w", dataset, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up dataset %s: %w", dataset, err)
	}
	return train, nil
}

// FullCVCandidates returns runs of key without a full CV error yet. An empty
// seed selects every seed.
func (s *Store) FullCVCandidates(ctx context.Context, key models.ExperimentKey, seed string) ([]models.Result, error) {
	where := `WHERE dataset = ? AND strategy = ? AND generation = ?
		AND (full_cv_error IS NULL OR full_cv_error = 0)`
	args := []any{key.Dataset, key.Strategy, key.Generation}
	if seed != "" {
		where += ` AND seed = ?`
		args = append(args, seed)
	}
	return s.selectResults(ctx, where+` ORDER BY seed`+s.batchOrder(), args...)
}

// UpdateFullCVError stores the repeated cross-validation error of a run.
func (s *Store) UpdateFullCVError(ctx context.Context, r models.Result, value *float64) error {
	query := `UPDATE results SET full_cv_error = ?
		WHERE dataset = ? AND strategy = ? AND generation = ? AND seed = ?`
	args := []any{nullFloat(value), r.Dataset, r.Strategy, r.Generation, r.Seed}
	if s.adaptive {
		query += ` AND batch IS ?`
		args = append(args, nullInt(r.Batch))
	}
	return s.withTx(ctx, func(ex execer) error {
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update full cv error of %s: %w", r.RunName(r.Seed), err)
		}
		return nil
	})
}

// UpdateTestError replaces the test error of a run.
func (s *Store) UpdateTestError(ctx context.Context, r models.Result, value *float64) error {
	query := `UPDATE results SET test_error = ?
		WHERE dataset = ? AND strategy = ? AND generation = ? AND seed = ?`
	args := []any{nullFloat(value), r.Dataset, r.Strategy, r.Generation, r.Seed}
	if s.adaptive {
		query += ` AND batch IS ?`
		args = append(args, nullInt(r.Batch))
	}
	return s.withTx(ctx, func(ex execer) error {
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update test error of %s: %w", r.RunName(r.Seed), err)
		}
		return nil
	})
}

func (s *Store) batchOrder() string {
	if s.adaptive {
		return ", batch"
	}
	return ""
}

func (s *Store) selectResults(ctx context.Context, where string, args ...any) ([]models.Result, error) {
	columns := resultColumns
	if s.adaptive {
		columns += ", batch"
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM results "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []models.Result
	for rows.Next() {
		var (
			r                                  models.Result
			trajectories, evaluations, total   sql.NullInt64
			memout, timeout, batch             sql.NullInt64
			errorValue, testError, fullCVError sql.NullFloat64
			configuration                      sql.NullString
		)
		dest := []any{&r.Dataset, &r.Strategy, &r.Generation, &r.Seed,
			&trajectories, &evaluations, &total, &memout, &timeout,
			&errorValue, &testError, &fullCVError, &configuration}
		if s.adaptive {
			dest = append(dest, &batch)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		r.NumTrajectories = int(trajectories.Int64)
		r.NumEvaluations = int(evaluations.Int64)
		r.TotalEvaluations = int(total.Int64)
		r.MemoutEvaluations = int(memout.Int64)
		r.TimeoutEvaluations = int(timeout.Int64)
		r.Error = fromNull(errorValue)
		r.TestError = fromNull(testError)
		r.FullCVError = fromNull(fullCVError)
		r.Configuration = strings.TrimSpace(configuration.String)
		if batch.Valid {
			b := int(batch.Int64)
			r.Batch = &b
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
