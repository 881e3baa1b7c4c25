package store

import (
	"context"
	"fmt"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// errorCeiling filters the sentinel errors Auto-WEKA records for crashed
// evaluations.
const errorCeiling = 1e9

// CreateTrajectoriesTable creates the trajectories table, dropping any
// previous contents when recreate is set.
func (s *Store) CreateTrajectoriesTable(ctx context.Context, recreate bool) error {
	return s.withTx(ctx, func(ex execer) error {
		if recreate {
			if _, err := ex.ExecContext(ctx, `DROP TABLE IF EXISTS trajectories`); err != nil {
				return fmt.Errorf("failed to drop trajectories: %w", err)
			}
		}
		_, err := ex.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS trajectories (
			dataset TEXT NOT NULL, strategy TEXT NOT NULL, generation TEXT NOT NULL,
			seed INTEGER NOT NULL, time REAL NOT NULL, error REAL, configuration TEXT,
			UNIQUE(dataset, strategy, generation, seed, time) ON CONFLICT REPLACE)`)
		if err != nil {
			return fmt.Errorf("failed to create trajectories: %w", err)
		}
		return nil
	})
}

// InsertTrajectoryPoints stores trajectory points in one transaction.
func (s *Store) InsertTrajectoryPoints(ctx context.Context, points []models.TrajectoryPoint) error {
	return s.withTx(ctx, func(ex execer) error {
		for _, p := range points {
			_, err := ex.ExecContext(ctx, `INSERT OR REPLACE INTO trajectories
				(dataset, strategy, generation, seed, time, error, configuration)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.Dataset, p.Strategy, p.Generation, p.Seed, p.Time, p.Error, p.Configuration)
			if err != nil {
				return fmt.Errorf("failed to insert trajectory point of %s: %w", p.RunName(p.Seed), err)
			}
		}
		return nil
	})
}

// TrajectoryPoints returns the points of key recorded within timeLimit
// seconds (all of them when timeLimit <= 0). Generations stored with their
// "-dataset" suffix match as well.
func (s *Store) TrajectoryPoints(ctx context.Context, key models.ExperimentKey, timeLimit float64) ([]models.TrajectoryPoint, error) {
	query := `SELECT seed, time, error, coalesce(configuration, '') FROM trajectories
		WHERE dataset = ? AND strategy = ? AND (generation = ? OR generation = ?)
		AND error < ?`
	args := []any{key.Dataset, key.Strategy, key.Generation, key.Generation + "-" + key.Dataset, errorCeiling}
	if timeLimit > 0 {
		query += ` AND time <= ?`
		args = append(args, timeLimit)
	}
	query += ` ORDER BY seed, time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectories: %w", err)
	}
	defer rows.Close()

	var out []models.TrajectoryPoint
	for rows.Next() {
		p := models.TrajectoryPoint{ExperimentKey: key}
		if err := rows.Scan(&p.Seed, &p.Time, &p.Error, &p.Configuration); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
