package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meridianews/meridian/internal/core/domain"
)

// UpsertCoverage replaces a cluster's coverage record. Coverage is derived
// state and always written whole.
func (db *DB) UpsertCoverage(ctx context.Context, cov domain.Coverage) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO story_coverage
			(group_id, left_count, center_count, right_count, total_count, coverage_score, first_reported_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (group_id) DO UPDATE SET
			left_count = EXCLUDED.left_count,
			center_count = EXCLUDED.center_count,
			right_count = EXCLUDED.right_count,
			total_count = EXCLUDED.total_count,
			coverage_score = EXCLUDED.coverage_score,
			first_reported_at = EXCLUDED.first_reported_at,
			last_updated_at = EXCLUDED.last_updated_at
	`, cov.GroupID, cov.LeftCount, cov.CenterCount, cov.RightCount, cov.TotalCount,
		cov.CoverageScore, toTimestamptz(cov.FirstReportedAt), toTimestamptz(cov.LastUpdatedAt)); err != nil {
		return fmt.Errorf("upsert coverage: %w", err)
	}

	return nil
}

// GetCoverage returns a cluster's coverage record.
func (db *DB) GetCoverage(ctx context.Context, groupID int64) (domain.Coverage, error) {
	var (
		cov           domain.Coverage
		firstReported pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT group_id, left_count, center_count, right_count, total_count, coverage_score, first_reported_at, last_updated_at
		FROM story_coverage WHERE group_id = $1
	`, groupID).Scan(&cov.GroupID, &cov.LeftCount, &cov.CenterCount, &cov.RightCount,
		&cov.TotalCount, &cov.CoverageScore, &firstReported, &cov.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Coverage{}, ErrNotFound
		}

		return domain.Coverage{}, fmt.Errorf("get coverage: %w", err)
	}

	cov.FirstReportedAt = fromTimestamptz(firstReported)

	return cov, nil
}
