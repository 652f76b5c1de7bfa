package db

import (
	"context"
	"fmt"
)

// StartAnalysisJob records the beginning of a bias-analysis attempt.
func (db *DB) StartAnalysisJob(ctx context.Context, groupID int64) (int64, error) {
	var id int64
	if err := db.Pool.QueryRow(ctx, `
		INSERT INTO ai_analysis_jobs (group_id) VALUES ($1) RETURNING id
	`, groupID).Scan(&id); err != nil {
		return 0, fmt.Errorf("start analysis job: %w", err)
	}

	return id, nil
}

// FinishAnalysisJob closes a job with its final status and optional error.
func (db *DB) FinishAnalysisJob(ctx context.Context, jobID int64, status, jobErr string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE ai_analysis_jobs SET status = $2, error = $3, finished_at = now() WHERE id = $1
	`, jobID, status, toText(jobErr)); err != nil {
		return fmt.Errorf("finish analysis job: %w", err)
	}

	return nil
}

// CountAnalysisJobs returns per-status job counts for the status surface.
func (db *DB) CountAnalysisJobs(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT status, count(*) FROM ai_analysis_jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count analysis jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}

		counts[status] = count
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate job counts: %w", rows.Err())
	}

	return counts, nil
}
