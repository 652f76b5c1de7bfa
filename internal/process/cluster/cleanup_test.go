package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianews/meridian/internal/core/domain"
)

func TestCleanupDissolvesSingleton(t *testing.T) {
	store := newFakeStore(climateArticle(1, 1), climateArticle(2, 2))

	_, err := store.CreateClusterWithMembers(context.Background(), "x", 1, []int64{1, 2}, 15)
	require.NoError(t, err)

	// Force a singleton by ungrouping one member out of band.
	require.NoError(t, store.UngroupArticles(context.Background(), []int64{2}))

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.Cleanup(context.Background()))

	assert.Empty(t, store.clusters)
	assert.Nil(t, store.articles[1].GroupID)
}

func TestCleanupRepairsDuplicateSources(t *testing.T) {
	older := climateArticle(1, 1)
	older.PublishedAt = time.Now().Add(-2 * time.Hour)

	newer := climateArticle(2, 1)
	partner := climateArticle(3, 2)

	store := newFakeStore(older, newer, partner)

	// Build a cluster that violates the one-per-source rule directly.
	gid := int64(500)
	store.clusters[gid] = []int64{1, 2, 3}

	for _, id := range []int64{1, 2, 3} {
		g := gid
		store.articles[id].GroupID = &g
	}

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.Cleanup(context.Background()))

	assert.Nil(t, store.articles[1].GroupID, "older duplicate is ungrouped")
	require.NotNil(t, store.articles[2].GroupID, "newest per source survives")
	require.NotNil(t, store.articles[3].GroupID)
	assert.ElementsMatch(t, []int64{2, 3}, store.clusters[gid])
}

func TestCleanupSplitsMegaCluster(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 3

	base := time.Now().Add(-40 * time.Hour)

	var ids []int64

	store := newFakeStore()

	// Two waves of coverage 20 hours apart, each from distinct sources.
	for i := int64(1); i <= 3; i++ {
		a := climateArticle(i, i)
		a.PublishedAt = base
		store.articles[i] = &a
		ids = append(ids, i)
	}

	for i := int64(4); i <= 6; i++ {
		a := climateArticle(i, i)
		a.PublishedAt = base.Add(20 * time.Hour)
		store.articles[i] = &a
		ids = append(ids, i)
	}

	gid := int64(500)
	store.clusters[gid] = ids

	for _, id := range ids {
		g := gid
		store.articles[id].GroupID = &g
	}

	engine := NewEngine(store, nil, nil, cfg, nopLogger())

	require.NoError(t, engine.Cleanup(context.Background()))

	require.Len(t, store.clusters, 2, "mega-cluster splits into two time buckets")

	assert.ElementsMatch(t, []int64{1, 2, 3}, store.clusters[gid], "first bucket keeps the original row")
	assert.Contains(t, store.clusters[gid], store.masters[gid], "kept row re-points to a surviving member")

	for id, members := range store.clusters {
		if id != gid {
			assert.ElementsMatch(t, []int64{4, 5, 6}, members)
		}
	}
}

func TestCleanupDissolvesUnsplittableMegaCluster(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2

	now := time.Now()

	var ids []int64

	store := newFakeStore()

	for i := int64(1); i <= 4; i++ {
		a := climateArticle(i, i)
		a.PublishedAt = now
		store.articles[i] = &a
		ids = append(ids, i)
	}

	gid := int64(500)
	store.clusters[gid] = ids

	for _, id := range ids {
		g := gid
		store.articles[id].GroupID = &g
	}

	engine := NewEngine(store, nil, nil, cfg, nopLogger())

	require.NoError(t, engine.Cleanup(context.Background()))

	assert.Empty(t, store.clusters, "single-window mega-cluster dissolves")

	for _, a := range store.articles {
		assert.Nil(t, a.GroupID)
	}
}

func TestFallbackSimilarity(t *testing.T) {
	a := domain.Article{Title: "President announces climate policy", Summary: "emissions targets announced today"}
	b := domain.Article{Title: "President announces climate policy", Summary: "emissions targets announced today"}
	c := domain.Article{Title: "Team wins championship", Summary: "a playoffs thriller"}

	assert.InDelta(t, 1.0, fallbackSimilarity(a, b, "weighted"), 0.001)
	assert.InDelta(t, 1.0, fallbackSimilarity(a, b, "title"), 0.001)
	assert.Less(t, fallbackSimilarity(a, c, "weighted"), 0.2)

	// Title mode ignores summaries entirely.
	d := domain.Article{Title: "President announces climate policy", Summary: "completely different text body"}
	assert.InDelta(t, 1.0, fallbackSimilarity(a, d, "title"), 0.001)
}
