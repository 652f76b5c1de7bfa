package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meridianews/meridian/internal/core/domain"
)

// UpsertSource inserts or updates a source keyed by feed URL and returns its
// id. Bias updates flow through here on operator reseeds.
func (db *DB) UpsertSource(ctx context.Context, src domain.Source) (int64, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO sources (name, url, feed_url, bias)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (feed_url) DO UPDATE SET name = EXCLUDED.name, url = EXCLUDED.url, bias = EXCLUDED.bias
		RETURNING id
	`, src.Name, src.URL, src.FeedURL, string(src.Bias))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert source: %w", err)
	}

	return id, nil
}

// ListSources returns all sources.
func (db *DB) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, url, feed_url, bias, last_fetched_at
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source

	for rows.Next() {
		var (
			src         domain.Source
			bias        string
			lastFetched pgtype.Timestamptz
		)

		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.FeedURL, &bias, &lastFetched); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		src.Bias = domain.ParseBias(bias)

		if lastFetched.Valid {
			t := lastFetched.Time
			src.LastFetchedAt = &t
		}

		sources = append(sources, src)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sources: %w", rows.Err())
	}

	return sources, nil
}

// ListFetchableSources returns sources with a known bias and a non-empty feed
// URL, the only ones ingestion and clustering consider.
func (db *DB) ListFetchableSources(ctx context.Context) ([]domain.Source, error) {
	sources, err := db.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	fetchable := sources[:0]

	for _, src := range sources {
		if src.Bias.Known() && src.FeedURL != "" {
			fetchable = append(fetchable, src)
		}
	}

	return fetchable, nil
}

// UpdateSourceFetched stamps the source's last-fetch time.
func (db *DB) UpdateSourceFetched(ctx context.Context, sourceID int64, at time.Time) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE sources SET last_fetched_at = $2 WHERE id = $1
	`, sourceID, toTimestamptz(at)); err != nil {
		return fmt.Errorf("update source fetched: %w", err)
	}

	return nil
}

// ReseedArticleBias re-copies each source's current bias onto its articles.
// This is the only path that rewrites an article's denormalized bias.
func (db *DB) ReseedArticleBias(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE articles a SET bias = s.bias
		FROM sources s
		WHERE a.source_id = s.id AND a.bias <> s.bias
	`)
	if err != nil {
		return 0, fmt.Errorf("reseed article bias: %w", err)
	}

	return tag.RowsAffected(), nil
}

// SourcesByBias returns the names of sources carrying the given bias,
// used for blindspot suggestions.
func (db *DB) SourcesByBias(ctx context.Context, bias domain.Bias) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT name FROM sources WHERE bias = $1 ORDER BY name
	`, string(bias))
	if err != nil {
		return nil, fmt.Errorf("sources by bias: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan source name: %w", err)
		}

		names = append(names, name)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate source names: %w", rows.Err())
	}

	return names, nil
}
