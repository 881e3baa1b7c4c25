package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// RecordSubmissions appends launcher submissions to the log.
func (s *Store) RecordSubmissions(ctx context.Context, subs []models.Submission) error {
	return s.withTx(ctx, func(ex execer) error {
		for _, sub := range subs {
			_, err := ex.ExecContext(ctx, `INSERT INTO submissions
				(batch_id, name, command, dataset, strategy, generation, seed, status, output, submitted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sub.BatchID, sub.Name, sub.Command, sub.Dataset, sub.Strategy, sub.Generation,
				sub.Seed, string(sub.Status), sub.Output, sub.SubmittedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to record submission %s: %w", sub.Name, err)
			}
		}
		return nil
	})
}

// Submissions returns the commands sent in one launch.
func (s *Store) Submissions(ctx context.Context, batchID string) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, name, command, coalesce(dataset, ''), coalesce(strategy, ''),
			coalesce(generation, ''), coalesce(seed, ''), status, coalesce(output, ''), submitted_at
		FROM submissions WHERE batch_id = ? ORDER BY rowid`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var sub models.Submission
		var status string
		var submittedAt int64
		if err := rows.Scan(&sub.BatchID, &sub.Name, &sub.Command, &sub.Dataset, &sub.Strategy,
			&sub.Generation, &sub.Seed, &status, &sub.Output, &submittedAt); err != nil {
			return nil, err
		}
		sub.Status = models.SubmissionStatus(status)
		sub.SubmittedAt = time.Unix(submittedAt, 0)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return out, nil
}
