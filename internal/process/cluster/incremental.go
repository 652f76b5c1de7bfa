package cluster

import (
	"context"
	"errors"
	"time"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/embeddings"
	"github.com/meridianews/meridian/internal/platform/observability"
	"github.com/meridianews/meridian/internal/process/keywords"
	db "github.com/meridianews/meridian/internal/storage"
)

// RunIncremental routes unclustered articles published within the
// incremental window through the single-article attach path. The batch pass
// afterwards picks up whatever the window left behind. Returns the number of
// articles routed.
func (e *Engine) RunIncremental(ctx context.Context) (int, error) {
	articles, err := e.store.ListUnclusteredArticles(ctx, minSummaryLength)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-e.cfg.IncrementalWindow)
	routed := 0

	for _, a := range articles {
		if ctx.Err() != nil {
			return routed, ctx.Err()
		}

		if a.PublishedAt.Before(cutoff) {
			continue
		}

		if err := e.ClusterNewArticle(ctx, a); err != nil {
			e.logger.Warn().Err(err).Int64("article", a.ID).Msg("incremental clustering failed")

			continue
		}

		routed++
	}

	return routed, nil
}

// ClusterNewArticle runs the cascade for a single freshly ingested article
// against recent articles from other sources. The first confirmed partner
// that already belongs to a cluster attaches the article there; otherwise a
// new cluster forms when at least one unclustered partner survives the
// semantic and embedding stages.
func (e *Engine) ClusterNewArticle(ctx context.Context, article domain.Article) error {
	if len(article.Summary) < minSummaryLength {
		return nil
	}

	since := time.Now().Add(-e.cfg.IncrementalWindow)

	candidates, err := e.store.ListRecentArticles(ctx, since, article.SourceID)
	if err != nil {
		return err
	}

	profile := keywords.Extract(article.Title, article.Summary)
	vectors := make(map[int64][]float32)

	var matched []domain.Article

	for _, cand := range candidates {
		if !e.screenPair(ctx, article, cand, profile, vectors) {
			continue
		}

		if e.judge != nil {
			judgment, err := e.judge.JudgeSimilarity(ctx, articleInput(article), articleInput(cand))
			if err != nil || judgment.Similarity < e.cfg.LLMThreshold {
				continue
			}
		}

		if cand.GroupID != nil {
			err := e.store.AttachArticleToCluster(ctx, article.ID, *cand.GroupID, e.cfg.MaxSize)
			if err == nil {
				e.logger.Debug().Int64("article", article.ID).Int64("group", *cand.GroupID).Msg("attached to existing cluster")

				return nil
			}

			if !errors.Is(err, db.ErrConstraintViolated) {
				return err
			}

			// I1 or I2 blocked the attach; keep looking.
			continue
		}

		matched = append(matched, cand)
	}

	if len(matched) == 0 {
		return nil
	}

	memberIDs := []int64{article.ID}
	usedSources := map[int64]bool{article.SourceID: true}

	for _, m := range matched {
		if usedSources[m.SourceID] {
			continue
		}

		if e.cfg.MaxSize > 0 && len(memberIDs) >= e.cfg.MaxSize {
			break
		}

		memberIDs = append(memberIDs, m.ID)
		usedSources[m.SourceID] = true
	}

	groupID, err := e.store.CreateClusterWithMembers(ctx, article.Title, article.ID, memberIDs, e.cfg.MaxSize)
	if err != nil {
		if errors.Is(err, db.ErrConstraintViolated) {
			return nil
		}

		return err
	}

	observability.ClustersCreated.Inc()

	if e.onCluster != nil {
		e.onCluster(ctx, groupID)
	}

	return nil
}

// screenPair applies the semantic and embedding stages to one candidate.
func (e *Engine) screenPair(ctx context.Context, article, cand domain.Article, profile keywords.Profile, vectors map[int64][]float32) bool {
	candProfile := keywords.Extract(cand.Title, cand.Summary)
	if keywords.CompositeScore(profile, candProfile) < e.cfg.SemanticThreshold {
		return false
	}

	if e.judge == nil {
		return fallbackSimilarity(article, cand, e.cfg.FallbackSimilarity) >= e.cfg.EmbeddingThreshold
	}

	va := e.embeddingFor(ctx, article, vectors)
	vb := e.embeddingFor(ctx, cand, vectors)

	return embeddings.CosineSimilarity(va, vb) >= e.cfg.EmbeddingThreshold
}
