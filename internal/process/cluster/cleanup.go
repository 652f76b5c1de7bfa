package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/platform/observability"
)

// Cleanup repairs clusters that drifted out of their invariants: singletons
// are dissolved, duplicate-source members beyond the newest are ungrouped,
// and oversized clusters are split by publication-time buckets.
func (e *Engine) Cleanup(ctx context.Context) error {
	groupIDs, err := e.store.ListClusterIDs(ctx)
	if err != nil {
		return err
	}

	for _, groupID := range groupIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := e.cleanupCluster(ctx, groupID); err != nil {
			e.logger.Error().Err(err).Int64("group", groupID).Msg("cleanup failed")
		}
	}

	return nil
}

func (e *Engine) cleanupCluster(ctx context.Context, groupID int64) error {
	articles, err := e.store.GetClusterArticles(ctx, groupID)
	if err != nil {
		return err
	}

	if len(articles) <= 1 {
		return e.dissolve(ctx, groupID)
	}

	articles, err = e.repairDuplicateSources(ctx, groupID, articles)
	if err != nil {
		return err
	}

	if len(articles) <= 1 {
		return e.dissolve(ctx, groupID)
	}

	if e.cfg.MaxSize > 0 && len(articles) > e.cfg.MaxSize {
		return e.splitMegaCluster(ctx, groupID, articles)
	}

	return nil
}

func (e *Engine) dissolve(ctx context.Context, groupID int64) error {
	if err := e.store.DissolveCluster(ctx, groupID); err != nil {
		return err
	}

	observability.ClustersDissolved.Inc()

	return nil
}

// repairDuplicateSources keeps only the newest article per source and
// ungroups the rest. Returns the surviving members.
func (e *Engine) repairDuplicateSources(ctx context.Context, groupID int64, articles []domain.Article) ([]domain.Article, error) {
	newest := make(map[int64]domain.Article)

	for _, a := range articles {
		cur, ok := newest[a.SourceID]
		if !ok || a.PublishedAt.After(cur.PublishedAt) {
			newest[a.SourceID] = a
		}
	}

	if len(newest) == len(articles) {
		return articles, nil
	}

	var (
		keep    []domain.Article
		ungroup []int64
	)

	for _, a := range articles {
		if newest[a.SourceID].ID == a.ID {
			keep = append(keep, a)
		} else {
			ungroup = append(ungroup, a.ID)
		}
	}

	if err := e.store.UngroupArticles(ctx, ungroup); err != nil {
		return nil, err
	}

	e.logger.Info().Int64("group", groupID).Int("ungrouped", len(ungroup)).Msg("duplicate-source members repaired")

	return keep, nil
}

// splitMegaCluster partitions an oversized cluster into half-window
// publication-time buckets. The first viable bucket stays in the original
// cluster; later viable buckets become new clusters; buckets that cannot
// form a valid cluster are ungrouped. An unsplittable cluster dissolves.
func (e *Engine) splitMegaCluster(ctx context.Context, groupID int64, articles []domain.Article) error {
	bucketWidth := e.cfg.IncrementalWindow / 2
	if bucketWidth <= 0 {
		bucketWidth = 12 * time.Hour
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.Before(articles[j].PublishedAt)
	})

	var buckets [][]domain.Article

	start := articles[0].PublishedAt

	current := []domain.Article{articles[0]}

	for _, a := range articles[1:] {
		if a.PublishedAt.Sub(start) < bucketWidth {
			current = append(current, a)

			continue
		}

		buckets = append(buckets, current)
		current = []domain.Article{a}
		start = a.PublishedAt
	}

	buckets = append(buckets, current)

	if len(buckets) == 1 {
		// Everything landed in one time window; the cluster cannot split
		// effectively and is dissolved.
		e.logger.Warn().Int64("group", groupID).Int("size", len(articles)).Msg("mega-cluster cannot split, dissolving")

		return e.dissolve(ctx, groupID)
	}

	keptOriginal := false

	for _, bucket := range buckets {
		bucket = dedupeSourcesNewest(bucket)

		if e.cfg.MaxSize > 0 && len(bucket) > e.cfg.MaxSize {
			bucket = bucket[:e.cfg.MaxSize]
		}

		ids := articleIDs(bucket)

		switch {
		case len(bucket) < 2:
			if err := e.store.UngroupArticles(ctx, ids); err != nil {
				return err
			}
		case !keptOriginal:
			// The first viable bucket keeps the existing cluster row, so
			// trim the membership down to it.
			var trim []int64

			inBucket := make(map[int64]bool, len(ids))
			for _, id := range ids {
				inBucket[id] = true
			}

			for _, a := range articles {
				if !inBucket[a.ID] {
					trim = append(trim, a.ID)
				}
			}

			if err := e.store.UngroupArticles(ctx, trim); err != nil {
				return err
			}

			// The original master may have landed in a later bucket, so the
			// kept row is re-pointed at a surviving member.
			if err := e.store.SetClusterMaster(ctx, groupID, bucket[0].ID, bucket[0].Title); err != nil {
				return err
			}

			keptOriginal = true
		default:
			if err := e.store.UngroupArticles(ctx, ids); err != nil {
				return err
			}

			if _, err := e.store.CreateClusterWithMembers(ctx, bucket[0].Title, bucket[0].ID, ids, e.cfg.MaxSize); err != nil {
				e.logger.Warn().Err(err).Int64("group", groupID).Msg("split bucket could not form a cluster")
			} else {
				observability.ClustersCreated.Inc()
			}
		}
	}

	if !keptOriginal {
		return e.dissolve(ctx, groupID)
	}

	return nil
}

// dedupeSourcesNewest keeps the newest article per source, preserving the
// publication ordering of the survivors.
func dedupeSourcesNewest(bucket []domain.Article) []domain.Article {
	newest := make(map[int64]domain.Article)

	for _, a := range bucket {
		cur, ok := newest[a.SourceID]
		if !ok || a.PublishedAt.After(cur.PublishedAt) {
			newest[a.SourceID] = a
		}
	}

	var kept []domain.Article

	for _, a := range bucket {
		if newest[a.SourceID].ID == a.ID {
			kept = append(kept, a)
		}
	}

	return kept
}

func articleIDs(articles []domain.Article) []int64 {
	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	return ids
}
