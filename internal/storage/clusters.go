package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianews/meridian/internal/core/domain"
)

// ArticleBiasScore is one article's normalized analysis result, written back
// inside the bias write-back transaction.
type ArticleBiasScore struct {
	ArticleID        int64
	PoliticalLeaning float32
	Sensationalism   float32
	FramingSummary   string
}

func scanCluster(row pgx.Row) (domain.Cluster, error) {
	var (
		c           domain.Cluster
		mostNeutral *int64
		neutral     *string
		biasSummary *string
	)

	if err := row.Scan(&c.ID, &c.Name, &c.MasterArticleID, &mostNeutral, &neutral, &biasSummary, &c.AnalysisComplete, &c.CreatedAt); err != nil {
		return domain.Cluster{}, err
	}

	c.MostUnbiasedArticleID = mostNeutral

	if neutral != nil {
		c.NeutralSummary = *neutral
	}

	if biasSummary != nil {
		c.BiasSummary = *biasSummary
	}

	return c, nil
}

const clusterColumns = `id, name, master_article_id, most_unbiased_article_id, neutral_summary, bias_summary, analysis_complete, created_at`

// GetCluster returns one cluster row.
func (db *DB) GetCluster(ctx context.Context, id int64) (domain.Cluster, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+clusterColumns+` FROM article_groups WHERE id = $1`, id)

	c, err := scanCluster(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cluster{}, ErrNotFound
		}

		return domain.Cluster{}, fmt.Errorf("get cluster: %w", err)
	}

	return c, nil
}

// GetClusterArticles returns a cluster's members joined with source names,
// newest first (the display order).
func (db *DB) GetClusterArticles(ctx context.Context, groupID int64) ([]domain.Article, error) {
	return db.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE a.group_id = $1
		ORDER BY a.published_at DESC, a.id
	`, groupID)
}

// CreateClusterWithMembers creates a cluster and assigns its members in one
// transaction. Source uniqueness and the size bound are re-verified against
// locked rows; a violation rolls the whole transaction back with
// ErrConstraintViolated and leaves every article unclustered.
func (db *DB) CreateClusterWithMembers(ctx context.Context, name string, masterID int64, memberIDs []int64, maxSize int) (int64, error) {
	if len(memberIDs) < 2 {
		return 0, fmt.Errorf("%w: cluster needs at least 2 members", ErrConstraintViolated)
	}

	if len(memberIDs) > maxSize {
		return 0, fmt.Errorf("%w: cluster exceeds %d members", ErrConstraintViolated, maxSize)
	}

	var groupID int64

	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, source_id FROM articles
			WHERE id = ANY($1) AND group_id IS NULL
			FOR UPDATE
		`, memberIDs)
		if err != nil {
			return fmt.Errorf("lock members: %w", err)
		}

		sources := make(map[int64]struct{}, len(memberIDs))
		locked := 0

		for rows.Next() {
			var id, sourceID int64
			if err := rows.Scan(&id, &sourceID); err != nil {
				rows.Close()

				return fmt.Errorf("scan member: %w", err)
			}

			if _, dup := sources[sourceID]; dup {
				rows.Close()

				return fmt.Errorf("%w: duplicate source %d", ErrConstraintViolated, sourceID)
			}

			sources[sourceID] = struct{}{}
			locked++
		}

		rows.Close()

		if rows.Err() != nil {
			return fmt.Errorf("iterate members: %w", rows.Err())
		}

		if locked != len(memberIDs) {
			return fmt.Errorf("%w: %d of %d members already clustered", ErrConstraintViolated, len(memberIDs)-locked, len(memberIDs))
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO article_groups (name, master_article_id) VALUES ($1, $2) RETURNING id
		`, name, masterID).Scan(&groupID); err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE articles SET group_id = $1 WHERE id = ANY($2)
		`, groupID, memberIDs); err != nil {
			return fmt.Errorf("assign members: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return groupID, nil
}

// AttachArticleToCluster adds one article to an existing cluster, enforcing
// source uniqueness and the size bound against locked member rows.
func (db *DB) AttachArticleToCluster(ctx context.Context, articleID, groupID int64, maxSize int) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		var sourceID int64
		if err := tx.QueryRow(ctx, `
			SELECT source_id FROM articles WHERE id = $1 AND group_id IS NULL FOR UPDATE
		`, articleID).Scan(&sourceID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: article %d already clustered", ErrConstraintViolated, articleID)
			}

			return fmt.Errorf("lock article: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT source_id FROM articles WHERE group_id = $1 FOR UPDATE
		`, groupID)
		if err != nil {
			return fmt.Errorf("lock cluster members: %w", err)
		}

		members := 0

		for rows.Next() {
			var memberSource int64
			if err := rows.Scan(&memberSource); err != nil {
				rows.Close()

				return fmt.Errorf("scan member source: %w", err)
			}

			if memberSource == sourceID {
				rows.Close()

				return fmt.Errorf("%w: source %d already in cluster %d", ErrConstraintViolated, sourceID, groupID)
			}

			members++
		}

		rows.Close()

		if rows.Err() != nil {
			return fmt.Errorf("iterate cluster members: %w", rows.Err())
		}

		if members+1 > maxSize {
			return fmt.Errorf("%w: cluster %d is full", ErrConstraintViolated, groupID)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE articles SET group_id = $2 WHERE id = $1
		`, articleID, groupID); err != nil {
			return fmt.Errorf("attach article: %w", err)
		}

		return nil
	})
}

// ListClusterIDs returns every cluster id, ascending.
func (db *DB) ListClusterIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM article_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cluster ids: %w", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cluster id: %w", err)
		}

		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster ids: %w", rows.Err())
	}

	return ids, nil
}

// ListPendingAnalysisClusters returns clusters awaiting bias analysis,
// oldest first.
func (db *DB) ListPendingAnalysisClusters(ctx context.Context, limit int) ([]domain.Cluster, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+clusterColumns+` FROM article_groups
		WHERE NOT analysis_complete
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending clusters: %w", err)
	}
	defer rows.Close()

	var clusters []domain.Cluster

	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending cluster: %w", err)
		}

		clusters = append(clusters, c)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate pending clusters: %w", rows.Err())
	}

	return clusters, nil
}

// WriteBiasAnalysis applies a cluster analysis in a single transaction:
// per-article scores, the neutral summary, the most-neutral pick and the
// completion flag.
func (db *DB) WriteBiasAnalysis(ctx context.Context, groupID int64, scores []ArticleBiasScore, neutralSummary, biasSummary string, mostNeutralID int64) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, s := range scores {
			if _, err := tx.Exec(ctx, `
				UPDATE articles
				SET political_leaning = $2, sensationalism = $3, framing_summary = $4, bias_analyzed = TRUE
				WHERE id = $1 AND group_id = $5
			`, s.ArticleID, s.PoliticalLeaning, s.Sensationalism, toText(s.FramingSummary), groupID); err != nil {
				return fmt.Errorf("write article score: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE article_groups
			SET neutral_summary = $2, bias_summary = $3, most_unbiased_article_id = $4, analysis_complete = TRUE, updated_at = now()
			WHERE id = $1
		`, groupID, neutralSummary, toText(biasSummary), mostNeutralID); err != nil {
			return fmt.Errorf("write cluster analysis: %w", err)
		}

		return nil
	})
}

// MarkAnalysisFailed latches the failure so the cluster is not retried in a
// tight loop; an operator sweep clears it later.
func (db *DB) MarkAnalysisFailed(ctx context.Context, groupID int64, message string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE article_groups
		SET analysis_complete = TRUE, bias_summary = $2, updated_at = now()
		WHERE id = $1
	`, groupID, message); err != nil {
		return fmt.Errorf("mark analysis failed: %w", err)
	}

	return nil
}

// ResetFailedAnalyses clears failure latches so the sweep retries those
// clusters. Returns the number of clusters reset.
func (db *DB) ResetFailedAnalyses(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE article_groups
		SET analysis_complete = FALSE, bias_summary = NULL
		WHERE analysis_complete AND bias_summary LIKE 'Analysis failed%'
	`)
	if err != nil {
		return 0, fmt.Errorf("reset failed analyses: %w", err)
	}

	return tag.RowsAffected(), nil
}

// SetClusterMaster re-points a cluster at a surviving member, used after a
// split trims the membership the original master belonged to.
func (db *DB) SetClusterMaster(ctx context.Context, groupID, masterID int64, name string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE article_groups
		SET master_article_id = $2, name = $3, updated_at = now()
		WHERE id = $1
	`, groupID, masterID, name); err != nil {
		return fmt.Errorf("set cluster master: %w", err)
	}

	return nil
}

// UngroupArticles clears the cluster assignment of the given articles.
func (db *DB) UngroupArticles(ctx context.Context, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}

	if _, err := db.Pool.Exec(ctx, `
		UPDATE articles SET group_id = NULL WHERE id = ANY($1)
	`, articleIDs); err != nil {
		return fmt.Errorf("ungroup articles: %w", err)
	}

	return nil
}

// DissolveCluster ungroups every member and removes the cluster row (and,
// by cascade, its coverage record) in one transaction.
func (db *DB) DissolveCluster(ctx context.Context, groupID int64) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE articles SET group_id = NULL WHERE group_id = $1
		`, groupID); err != nil {
			return fmt.Errorf("ungroup members: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM article_groups WHERE id = $1
		`, groupID); err != nil {
			return fmt.Errorf("delete cluster: %w", err)
		}

		return nil
	})
}

// CountClusters returns total and analyzed cluster counts.
func (db *DB) CountClusters(ctx context.Context) (total, analyzed int64, err error) {
	if err = db.Pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE analysis_complete) FROM article_groups
	`).Scan(&total, &analyzed); err != nil {
		return 0, 0, fmt.Errorf("count clusters: %w", err)
	}

	return total, analyzed, nil
}
