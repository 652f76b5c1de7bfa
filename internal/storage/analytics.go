package db

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianews/meridian/internal/core/domain"
)

// TrendingCluster is a cluster joined with its coverage record for the
// trending listing.
type TrendingCluster struct {
	Cluster  domain.Cluster
	Coverage domain.Coverage
}

// ListTrendingClusters returns clusters updated within the window, largest
// coverage first, with explicit offset/limit paging and an optional minimum
// coverage filter.
func (db *DB) ListTrendingClusters(ctx context.Context, since time.Time, minCoverage, offset, limit int) ([]TrendingCluster, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT g.id, g.name, g.master_article_id, g.most_unbiased_article_id, g.neutral_summary,
		       g.bias_summary, g.analysis_complete, g.created_at,
		       c.left_count, c.center_count, c.right_count, c.total_count, c.coverage_score,
		       c.first_reported_at, c.last_updated_at
		FROM article_groups g
		JOIN story_coverage c ON c.group_id = g.id
		WHERE c.last_updated_at >= $1 AND c.coverage_score >= $2
		ORDER BY c.coverage_score DESC, c.total_count DESC, g.id
		OFFSET $3 LIMIT $4
	`, toTimestamptz(since), minCoverage, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list trending clusters: %w", err)
	}
	defer rows.Close()

	var trending []TrendingCluster

	for rows.Next() {
		var (
			t             TrendingCluster
			mostNeutral   *int64
			neutral       *string
			biasSummary   *string
			firstReported *time.Time
		)

		if err := rows.Scan(&t.Cluster.ID, &t.Cluster.Name, &t.Cluster.MasterArticleID, &mostNeutral,
			&neutral, &biasSummary, &t.Cluster.AnalysisComplete, &t.Cluster.CreatedAt,
			&t.Coverage.LeftCount, &t.Coverage.CenterCount, &t.Coverage.RightCount,
			&t.Coverage.TotalCount, &t.Coverage.CoverageScore, &firstReported, &t.Coverage.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trending cluster: %w", err)
		}

		t.Cluster.MostUnbiasedArticleID = mostNeutral
		t.Coverage.GroupID = t.Cluster.ID

		if neutral != nil {
			t.Cluster.NeutralSummary = *neutral
		}

		if biasSummary != nil {
			t.Cluster.BiasSummary = *biasSummary
		}

		if firstReported != nil {
			t.Coverage.FirstReportedAt = *firstReported
		}

		trending = append(trending, t)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate trending clusters: %w", rows.Err())
	}

	return trending, nil
}

// AnalyticsOverview summarizes the whole corpus for the analytics endpoint.
type AnalyticsOverview struct {
	TotalClusters   int64
	AverageCoverage float64
	BlindspotCount  int64
}

// GetAnalyticsOverview returns total clusters, average coverage score and the
// active blindspot count.
func (db *DB) GetAnalyticsOverview(ctx context.Context) (AnalyticsOverview, error) {
	var overview AnalyticsOverview

	if err := db.Pool.QueryRow(ctx, `
		SELECT count(g.id), COALESCE(avg(c.coverage_score), 0)
		FROM article_groups g
		LEFT JOIN story_coverage c ON c.group_id = g.id
	`).Scan(&overview.TotalClusters, &overview.AverageCoverage); err != nil {
		return AnalyticsOverview{}, fmt.Errorf("analytics overview: %w", err)
	}

	blindspots, err := db.CountActiveBlindspots(ctx)
	if err != nil {
		return AnalyticsOverview{}, err
	}

	overview.BlindspotCount = blindspots

	return overview, nil
}

// BiasDistribution returns a histogram of analyzed articles bucketed by
// political leaning. Buckets span [-1,1] in steps of 0.25.
func (db *DB) BiasDistribution(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT width_bucket(political_leaning, -1.0, 1.0, 8) AS bucket, count(*)
		FROM articles
		WHERE bias_analyzed AND political_leaning IS NOT NULL
		GROUP BY bucket
		ORDER BY bucket
	`)
	if err != nil {
		return nil, fmt.Errorf("bias distribution: %w", err)
	}
	defer rows.Close()

	histogram := make(map[string]int64)

	for rows.Next() {
		var (
			bucket int
			count  int64
		)

		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan bias bucket: %w", err)
		}

		histogram[bucketLabel(bucket)] = count
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate bias buckets: %w", rows.Err())
	}

	return histogram, nil
}

func bucketLabel(bucket int) string {
	if bucket < 1 {
		bucket = 1
	}

	if bucket > 8 {
		bucket = 8
	}

	low := -1.0 + float64(bucket-1)*0.25
	high := low + 0.25

	return fmt.Sprintf("%.2f..%.2f", low, high)
}
