// Package seed ships the curated source list and the operator reseed path.
package seed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
)

type store interface {
	UpsertSource(ctx context.Context, src domain.Source) (int64, error)
	ReseedArticleBias(ctx context.Context) (int64, error)
}

// Sources is the curated outlet list. Bias labels follow the common
// AllSides-style classification and are deliberately coarse.
var Sources = []domain.Source{
	{Name: "Associated Press", URL: "https://apnews.com", FeedURL: "https://feedx.net/rss/ap.xml", Bias: domain.BiasCenter},
	{Name: "Reuters", URL: "https://www.reuters.com", FeedURL: "https://www.reutersagency.com/feed/?best-topics=top-news", Bias: domain.BiasCenter},
	{Name: "NPR", URL: "https://www.npr.org", FeedURL: "https://feeds.npr.org/1001/rss.xml", Bias: domain.BiasCenter},
	{Name: "BBC News", URL: "https://www.bbc.com/news", FeedURL: "https://feeds.bbci.co.uk/news/world/rss.xml", Bias: domain.BiasCenter},
	{Name: "The Hill", URL: "https://thehill.com", FeedURL: "https://thehill.com/news/feed/", Bias: domain.BiasCenter},
	{Name: "CNN", URL: "https://www.cnn.com", FeedURL: "http://rss.cnn.com/rss/cnn_topstories.rss", Bias: domain.BiasLeft},
	{Name: "MSNBC", URL: "https://www.msnbc.com", FeedURL: "https://www.msnbc.com/feeds/latest", Bias: domain.BiasLeft},
	{Name: "The Guardian", URL: "https://www.theguardian.com", FeedURL: "https://www.theguardian.com/us-news/rss", Bias: domain.BiasLeft},
	{Name: "HuffPost", URL: "https://www.huffpost.com", FeedURL: "https://www.huffpost.com/section/front-page/feed", Bias: domain.BiasLeft},
	{Name: "Mother Jones", URL: "https://www.motherjones.com", FeedURL: "https://www.motherjones.com/feed/", Bias: domain.BiasLeft},
	{Name: "Fox News", URL: "https://www.foxnews.com", FeedURL: "https://moxie.foxnews.com/google-publisher/latest.xml", Bias: domain.BiasRight},
	{Name: "New York Post", URL: "https://nypost.com", FeedURL: "https://nypost.com/feed/", Bias: domain.BiasRight},
	{Name: "Washington Examiner", URL: "https://www.washingtonexaminer.com", FeedURL: "https://www.washingtonexaminer.com/feed", Bias: domain.BiasRight},
	{Name: "The Daily Wire", URL: "https://www.dailywire.com", FeedURL: "https://www.dailywire.com/feeds/rss.xml", Bias: domain.BiasRight},
	{Name: "Breitbart", URL: "https://www.breitbart.com", FeedURL: "https://feeds.feedburner.com/breitbart", Bias: domain.BiasRight},
}

// Seeder upserts the curated list.
type Seeder struct {
	store  store
	logger *zerolog.Logger
}

func NewSeeder(store store, logger *zerolog.Logger) *Seeder {
	return &Seeder{store: store, logger: logger}
}

// Seed upserts every curated source, keyed by feed URL, and then re-copies
// each source's bias onto its existing articles. The reseed is the only path
// that rewrites an article's denormalised bias.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	upserted := 0

	for _, src := range Sources {
		if _, err := s.store.UpsertSource(ctx, src); err != nil {
			s.logger.Error().Err(err).Str("source", src.Name).Msg("upsert source failed")

			continue
		}

		upserted++
	}

	rewritten, err := s.store.ReseedArticleBias(ctx)
	if err != nil {
		return upserted, err
	}

	s.logger.Info().Int("sources", upserted).Int64("articles_rebiased", rewritten).Msg("seed complete")

	return upserted, nil
}
