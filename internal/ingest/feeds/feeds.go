// Package feeds fetches RSS and Atom feeds for every fetchable source and
// persists new articles. Feed failures are isolated per source and per
// entry so one broken outlet never stalls a run.
package feeds

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/platform/htmlutils"
	"github.com/meridianews/meridian/internal/platform/observability"
)

const (
	minTitleLength   = 5
	maxSummaryLength = 1000

	fetchAttempts = 3
	fetchBackoff  = time.Second
)

type store interface {
	ListFetchableSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceFetched(ctx context.Context, sourceID int64, at time.Time) error
	ArticleExistsByLink(ctx context.Context, link string) (bool, error)
	InsertArticle(ctx context.Context, a domain.Article) (int64, error)
}

// Reader ingests configured feeds.
type Reader struct {
	store       store
	parser      *gofeed.Parser
	concurrency int
	logger      *zerolog.Logger
}

func NewReader(store store, concurrency int, logger *zerolog.Logger) *Reader {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Reader{
		store:       store,
		parser:      gofeed.NewParser(),
		concurrency: concurrency,
		logger:      logger,
	}
}

// IngestAll fetches every fetchable source. Sources are processed
// concurrently under a bounded semaphore; per-source failures are logged and
// never abort the run.
func (r *Reader) IngestAll(ctx context.Context) (int, error) {
	sources, err := r.store.ListFetchableSources(ctx)
	if err != nil {
		return 0, err
	}

	workers := r.concurrency
	if len(sources) < workers {
		workers = len(sources)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)

	sem := make(chan struct{}, workers)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(src domain.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := r.IngestSource(ctx, src)
			if err != nil {
				observability.FeedFetchErrors.WithLabelValues(src.Name).Inc()
				r.logger.Error().Err(err).Str("source", src.Name).Msg("feed ingest failed")

				return
			}

			mu.Lock()
			inserted += n
			mu.Unlock()
		}(src)
	}

	wg.Wait()

	return inserted, ctx.Err()
}

// IngestSource fetches and persists one source's feed. Returns the number of
// newly inserted articles.
func (r *Reader) IngestSource(ctx context.Context, src domain.Source) (int, error) {
	feed, err := r.fetchFeed(ctx, src.FeedURL)
	if err != nil {
		return 0, err
	}

	inserted := 0

	for _, item := range feed.Items {
		article, ok := r.extractArticle(item, src)
		if !ok {
			continue
		}

		exists, err := r.store.ArticleExistsByLink(ctx, article.Link)
		if err != nil {
			r.logger.Error().Err(err).Str("link", article.Link).Msg("dedup lookup failed")

			continue
		}

		if exists {
			continue
		}

		if _, err := r.store.InsertArticle(ctx, article); err != nil {
			r.logger.Error().Err(err).Str("link", article.Link).Msg("insert article failed")

			continue
		}

		observability.ArticlesIngested.WithLabelValues(src.Name).Inc()

		inserted++
	}

	if err := r.store.UpdateSourceFetched(ctx, src.ID, time.Now()); err != nil {
		r.logger.Warn().Err(err).Str("source", src.Name).Msg("update fetch timestamp failed")
	}

	r.logger.Debug().Str("source", src.Name).Int("new", inserted).Int("entries", len(feed.Items)).Msg("source ingested")

	return inserted, nil
}

// fetchFeed parses the feed URL with linear-backoff retries. Flaky outlet
// CDNs recover within a second or two often enough to make this worthwhile.
func (r *Reader) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	var lastErr error

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err == nil {
			return feed, nil
		}

		lastErr = err

		if attempt == fetchAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * fetchBackoff):
		}
	}

	return nil, lastErr
}

// extractArticle converts a feed entry into an article. An entry is accepted
// iff it has a non-empty link and a title of at least 5 characters. The
// source's bias is denormalised onto the article at insert time.
func (r *Reader) extractArticle(item *gofeed.Item, src domain.Source) (domain.Article, bool) {
	link := strings.TrimSpace(item.Link)
	title := htmlutils.NormalizeWhitespace(htmlutils.StripTags(item.Title))

	if link == "" || len(title) < minTitleLength {
		return domain.Article{}, false
	}

	return domain.Article{
		SourceID:    src.ID,
		Title:       title,
		Link:        link,
		Summary:     extractSummary(item),
		PublishedAt: extractPublished(item),
		ImageURL:    extractImage(item),
		Bias:        src.Bias,
	}, true
}

// extractSummary takes the first non-empty of description, content and the
// iTunes summary, stripped and truncated.
func extractSummary(item *gofeed.Item) string {
	candidates := []string{item.Description, item.Content}
	if item.ITunesExt != nil {
		candidates = append(candidates, item.ITunesExt.Summary)
	}

	for _, c := range candidates {
		if cleaned := htmlutils.CleanFragment(c, maxSummaryLength); cleaned != "" {
			return cleaned
		}
	}

	return ""
}

// extractPublished prefers the parsed publication time, then a lenient parse
// of the raw string, then the update time, then now.
func extractPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}

	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t
		}
	}

	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}

	return time.Now()
}

// extractImage walks the fallback chain: image enclosure, iTunes image,
// top-level feed item image, media thumbnail, first media content.
func extractImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if url := mediaExtensionURL(item, "thumbnail"); url != "" {
		return url
	}

	return mediaExtensionURL(item, "content")
}

// mediaExtensionURL digs a url attribute out of an RSS media extension.
func mediaExtensionURL(item *gofeed.Item, name string) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}

	for _, ext := range media[name] {
		if url := ext.Attrs["url"]; url != "" {
			return url
		}
	}

	return ""
}
