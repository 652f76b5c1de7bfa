package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/meridianews/meridian/internal/core/domain"
)

const articleColumns = `
	a.id, a.source_id, a.group_id, a.title, a.link, a.summary, a.published_at,
	a.image_url, a.bias, a.indexed, a.bias_analyzed, a.political_leaning,
	a.sensationalism, a.framing_summary, s.name`

func scanArticle(row pgx.Row) (domain.Article, error) {
	var (
		a       domain.Article
		groupID pgtype.Int8
		summary pgtype.Text
		bias    string
		leaning pgtype.Float4
		sensat  pgtype.Float4
		framing pgtype.Text
		pubAt   pgtype.Timestamptz
	)

	if err := row.Scan(&a.ID, &a.SourceID, &groupID, &a.Title, &a.Link, &summary, &pubAt,
		&a.ImageURL, &bias, &a.Indexed, &a.BiasAnalyzed, &leaning, &sensat, &framing, &a.SourceName); err != nil {
		return domain.Article{}, err
	}

	a.GroupID = fromInt8Ptr(groupID)
	a.Summary = fromText(summary)
	a.PublishedAt = fromTimestamptz(pubAt)
	a.Bias = domain.ParseBias(bias)
	a.PoliticalLeaning = fromFloat4Ptr(leaning)
	a.Sensationalism = fromFloat4Ptr(sensat)
	a.FramingSummary = fromText(framing)

	return a, nil
}

func (db *DB) queryArticles(ctx context.Context, sql string, args ...any) ([]domain.Article, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article

	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}

		articles = append(articles, a)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate articles: %w", rows.Err())
	}

	return articles, nil
}

// ArticleExistsByLink is the ingestion dedupe check: the canonical link is
// the idempotence key.
func (db *DB) ArticleExistsByLink(ctx context.Context, link string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM articles WHERE link = $1)
	`, link).Scan(&exists); err != nil {
		return false, fmt.Errorf("article exists by link: %w", err)
	}

	return exists, nil
}

// InsertArticle persists a new article and stamps the owning source's
// last-fetch time in the same transaction.
func (db *DB) InsertArticle(ctx context.Context, a domain.Article) (int64, error) {
	var id int64

	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO articles (source_id, title, link, summary, published_at, image_url, bias)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (link) DO NOTHING
			RETURNING id
		`, a.SourceID, a.Title, a.Link, toText(a.Summary), toTimestamptz(a.PublishedAt), a.ImageURL, string(a.Bias))

		if err := row.Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Lost a race on the link key; idempotent skip.
				return nil
			}

			return fmt.Errorf("insert article: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE sources SET last_fetched_at = now() WHERE id = $1
		`, a.SourceID); err != nil {
			return fmt.Errorf("stamp source fetch: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetArticle returns one article joined with its source name.
func (db *DB) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE a.id = $1
	`, id)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Article{}, ErrNotFound
		}

		return domain.Article{}, fmt.Errorf("get article: %w", err)
	}

	return a, nil
}

// ListUnclusteredArticles returns unclustered articles with a usable summary
// (>= minSummaryLen chars), ascending by id so tie-breaks are stable.
func (db *DB) ListUnclusteredArticles(ctx context.Context, minSummaryLen int) ([]domain.Article, error) {
	return db.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE a.group_id IS NULL AND s.bias <> 'unknown'
		  AND a.summary IS NOT NULL AND length(a.summary) >= $1
		ORDER BY a.id
	`, minSummaryLen)
}

// ListRecentArticles returns articles published since the cutoff, from
// sources other than excludeSourceID, ascending by id.
func (db *DB) ListRecentArticles(ctx context.Context, since time.Time, excludeSourceID int64) ([]domain.Article, error) {
	return db.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE a.published_at >= $1 AND a.source_id <> $2 AND s.bias <> 'unknown'
		ORDER BY a.id
	`, toTimestamptz(since), excludeSourceID)
}

// GetArticleEmbedding returns the stored embedding, or nil when absent.
func (db *DB) GetArticleEmbedding(ctx context.Context, articleID int64) ([]float32, error) {
	var vec *pgvector.Vector
	if err := db.Pool.QueryRow(ctx, `
		SELECT embedding FROM articles WHERE id = $1
	`, articleID).Scan(&vec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get article embedding: %w", err)
	}

	if vec == nil {
		return nil, nil
	}

	return vec.Slice(), nil
}

// SetArticleEmbedding stores a computed embedding for reuse by the
// incremental clustering path.
func (db *DB) SetArticleEmbedding(ctx context.Context, articleID int64, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	if _, err := db.Pool.Exec(ctx, `
		UPDATE articles SET embedding = $2 WHERE id = $1
	`, articleID, vec); err != nil {
		return fmt.Errorf("set article embedding: %w", err)
	}

	return nil
}

// ListAnalyzedUnindexed returns bias-analyzed articles not yet pushed to the
// full-text index.
func (db *DB) ListAnalyzedUnindexed(ctx context.Context, limit int) ([]domain.Article, error) {
	return db.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE a.bias_analyzed AND NOT a.indexed
		ORDER BY a.id
		LIMIT $1
	`, limit)
}

// MarkArticleIndexed flips the indexed flag after the index acknowledged the
// document.
func (db *DB) MarkArticleIndexed(ctx context.Context, articleID int64) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE articles SET indexed = TRUE WHERE id = $1
	`, articleID); err != nil {
		return fmt.Errorf("mark article indexed: %w", err)
	}

	return nil
}

// SearchArticles is the store-side fallback when the full-text index is
// unavailable: a trigram-free ILIKE match over title and summary.
func (db *DB) SearchArticles(ctx context.Context, query string, since time.Time, limit int) ([]domain.Article, error) {
	return db.queryArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON a.source_id = s.id
		WHERE (a.title ILIKE '%' || $1 || '%' OR a.summary ILIKE '%' || $1 || '%')
		  AND a.published_at >= $2
		ORDER BY a.published_at DESC
		LIMIT $3
	`, query, toTimestamptz(since), limit)
}

// CountArticles returns total and unclustered article counts for the status
// surface.
func (db *DB) CountArticles(ctx context.Context) (total, unclustered int64, err error) {
	if err = db.Pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE group_id IS NULL) FROM articles
	`).Scan(&total, &unclustered); err != nil {
		return 0, 0, fmt.Errorf("count articles: %w", err)
	}

	return total, unclustered, nil
}
