package cluster

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/llm"
	db "github.com/meridianews/meridian/internal/storage"
)

type fakeStore struct {
	articles   map[int64]*domain.Article
	embeddings map[int64][]float32
	clusters   map[int64][]int64
	masters    map[int64]int64
	nextGroup  int64
}

func newFakeStore(articles ...domain.Article) *fakeStore {
	s := &fakeStore{
		articles:   make(map[int64]*domain.Article),
		embeddings: make(map[int64][]float32),
		clusters:   make(map[int64][]int64),
		masters:    make(map[int64]int64),
		nextGroup:  100,
	}

	for i := range articles {
		a := articles[i]
		s.articles[a.ID] = &a
	}

	return s
}

func (s *fakeStore) ListUnclusteredArticles(_ context.Context, minSummaryLen int) ([]domain.Article, error) {
	var out []domain.Article

	for _, a := range s.articles {
		if a.GroupID == nil && len(a.Summary) >= minSummaryLen {
			out = append(out, *a)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *fakeStore) ListRecentArticles(_ context.Context, since time.Time, excludeSourceID int64) ([]domain.Article, error) {
	var out []domain.Article

	for _, a := range s.articles {
		if a.SourceID != excludeSourceID && !a.PublishedAt.Before(since) {
			out = append(out, *a)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *fakeStore) GetArticleEmbedding(_ context.Context, articleID int64) ([]float32, error) {
	return s.embeddings[articleID], nil
}

func (s *fakeStore) SetArticleEmbedding(_ context.Context, articleID int64, embedding []float32) error {
	s.embeddings[articleID] = embedding

	return nil
}

func (s *fakeStore) CreateClusterWithMembers(_ context.Context, _ string, _ int64, memberIDs []int64, maxSize int) (int64, error) {
	if maxSize > 0 && len(memberIDs) > maxSize {
		return 0, db.ErrConstraintViolated
	}

	sources := make(map[int64]bool)

	for _, id := range memberIDs {
		a, ok := s.articles[id]
		if !ok || a.GroupID != nil {
			return 0, db.ErrConstraintViolated
		}

		if sources[a.SourceID] {
			return 0, db.ErrConstraintViolated
		}

		sources[a.SourceID] = true
	}

	if len(sources) < 2 {
		return 0, db.ErrConstraintViolated
	}

	s.nextGroup++
	groupID := s.nextGroup

	for _, id := range memberIDs {
		gid := groupID
		s.articles[id].GroupID = &gid
	}

	s.clusters[groupID] = append([]int64{}, memberIDs...)

	return groupID, nil
}

func (s *fakeStore) AttachArticleToCluster(_ context.Context, articleID, groupID int64, maxSize int) error {
	members := s.clusters[groupID]
	if maxSize > 0 && len(members) >= maxSize {
		return db.ErrConstraintViolated
	}

	candidate := s.articles[articleID]

	for _, id := range members {
		if s.articles[id].SourceID == candidate.SourceID {
			return db.ErrConstraintViolated
		}
	}

	gid := groupID
	candidate.GroupID = &gid
	s.clusters[groupID] = append(members, articleID)

	return nil
}

func (s *fakeStore) SetClusterMaster(_ context.Context, groupID, masterID int64, _ string) error {
	s.masters[groupID] = masterID

	return nil
}

func (s *fakeStore) ListClusterIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	for id := range s.clusters {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (s *fakeStore) GetClusterArticles(_ context.Context, groupID int64) ([]domain.Article, error) {
	var out []domain.Article
	for _, id := range s.clusters[groupID] {
		out = append(out, *s.articles[id])
	}

	return out, nil
}

func (s *fakeStore) UngroupArticles(_ context.Context, articleIDs []int64) error {
	for _, id := range articleIDs {
		a := s.articles[id]
		if a.GroupID == nil {
			continue
		}

		groupID := *a.GroupID
		a.GroupID = nil

		var remaining []int64

		for _, member := range s.clusters[groupID] {
			if member != id {
				remaining = append(remaining, member)
			}
		}

		s.clusters[groupID] = remaining
	}

	return nil
}

func (s *fakeStore) DissolveCluster(_ context.Context, groupID int64) error {
	for _, id := range s.clusters[groupID] {
		s.articles[id].GroupID = nil
	}

	delete(s.clusters, groupID)

	return nil
}

type fakeJudge struct {
	similarity map[string]float64
	calls      int
}

func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}

	return fmt.Sprintf("%d-%d", a, b)
}

func (j *fakeJudge) JudgeSimilarity(_ context.Context, a, b llm.ArticleInput) (llm.SimilarityJudgment, error) {
	j.calls++

	sim, ok := j.similarity[pairKey(a.ID, b.ID)]
	if !ok {
		sim = 0
	}

	return llm.SimilarityJudgment{Similarity: sim, IsMatch: sim >= 0.75}, nil
}

func testConfig() Config {
	return Config{
		SemanticThreshold:  0.3,
		EmbeddingThreshold: 0.55,
		LLMThreshold:       0.75,
		MaxSize:            15,
		MaxPerSource:       50,
		MaxTotal:           -1,
		TopCandidates:      10,
		IncrementalWindow:  24 * time.Hour,
		FallbackSimilarity: "weighted",
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func climateArticle(id, sourceID int64) domain.Article {
	return domain.Article{
		ID:          id,
		SourceID:    sourceID,
		Title:       "President announces climate policy",
		Summary:     "The president announced new emissions targets for the climate at the White House today.",
		PublishedAt: time.Now(),
	}
}

func sportsArticle(id, sourceID int64) domain.Article {
	return domain.Article{
		ID:          id,
		SourceID:    sourceID,
		Title:       "Team wins championship game in overtime thriller",
		Summary:     "A dramatic playoffs finish crowned the league season with a stadium celebration.",
		PublishedAt: time.Now(),
	}
}

func TestBalancedSample(t *testing.T) {
	articles := []domain.Article{
		{ID: 1, SourceID: 1}, {ID: 2, SourceID: 1}, {ID: 3, SourceID: 1},
		{ID: 4, SourceID: 2}, {ID: 5, SourceID: 2},
		{ID: 6, SourceID: 3},
	}

	t.Run("per-source cap", func(t *testing.T) {
		sample := balancedSample(articles, -1, 2)

		counts := make(map[int64]int)
		for _, a := range sample {
			counts[a.SourceID]++
		}

		assert.Equal(t, 2, counts[1])
		assert.Equal(t, 2, counts[2])
		assert.Equal(t, 1, counts[3])
	})

	t.Run("total cap draws round-robin", func(t *testing.T) {
		sample := balancedSample(articles, 3, 50)

		require.Len(t, sample, 3)

		sources := make(map[int64]bool)
		for _, a := range sample {
			sources[a.SourceID] = true
		}

		assert.Len(t, sources, 3, "one article from each source before seconds")
	})

	t.Run("unlimited", func(t *testing.T) {
		assert.Len(t, balancedSample(articles, -1, 50), 6)
	})
}

func TestRunClustersSameEventAcrossSources(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 2),
		climateArticle(3, 3),
		sportsArticle(4, 1),
	)

	judge := &fakeJudge{similarity: map[string]float64{
		pairKey(1, 2): 0.9,
		pairKey(1, 3): 0.9,
		pairKey(2, 3): 0.9,
	}}

	store.embeddings[1] = []float32{1, 0}
	store.embeddings[2] = []float32{1, 0.1}
	store.embeddings[3] = []float32{1, 0.05}
	store.embeddings[4] = []float32{0, 1}

	engine := NewEngine(store, nil, judge, testConfig(), nopLogger())

	created, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	require.Len(t, store.clusters, 1)

	for _, members := range store.clusters {
		assert.ElementsMatch(t, []int64{1, 2, 3}, members)
	}

	assert.Nil(t, store.articles[4].GroupID, "sports article stays unclustered")
}

func TestRunNeverPairsSameSource(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 1),
	)

	judge := &fakeJudge{similarity: map[string]float64{pairKey(1, 2): 1}}

	store.embeddings[1] = []float32{1, 0}
	store.embeddings[2] = []float32{1, 0}

	engine := NewEngine(store, nil, judge, testConfig(), nopLogger())

	created, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, created)
	assert.Zero(t, judge.calls, "same-source pair must never reach the judge")
}

func TestRunLLMRejectionBlocksCluster(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 2),
	)

	judge := &fakeJudge{similarity: map[string]float64{pairKey(1, 2): 0.4}}

	store.embeddings[1] = []float32{1, 0}
	store.embeddings[2] = []float32{1, 0}

	engine := NewEngine(store, nil, judge, testConfig(), nopLogger())

	created, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, created)
	assert.Equal(t, 1, judge.calls)
}

func TestRunFallbackPathWithoutProvider(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 2),
	)

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	created, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, created, "identical articles cluster on textual fallback")
}

func TestRunEmbeddingStagePrunes(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 2),
	)

	judge := &fakeJudge{similarity: map[string]float64{pairKey(1, 2): 1}}

	// Orthogonal embeddings: the pair dies before the judge.
	store.embeddings[1] = []float32{1, 0}
	store.embeddings[2] = []float32{0, 1}

	engine := NewEngine(store, nil, judge, testConfig(), nopLogger())

	created, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, created)
	assert.Zero(t, judge.calls)
}

func TestRunInvokesEnrichmentHook(t *testing.T) {
	store := newFakeStore(
		climateArticle(1, 1),
		climateArticle(2, 2),
	)

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	var enriched []int64

	engine.SetOnClusterCreated(func(_ context.Context, groupID int64) {
		enriched = append(enriched, groupID)
	})

	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, enriched, 1)
}

func TestClusterNewArticleAttachesToExisting(t *testing.T) {
	existing := climateArticle(1, 1)
	partner := climateArticle(2, 2)

	store := newFakeStore(existing, partner)

	_, err := store.CreateClusterWithMembers(context.Background(), existing.Title, existing.ID, []int64{1, 2}, 15)
	require.NoError(t, err)

	fresh := climateArticle(3, 3)
	store.articles[3] = &fresh

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.ClusterNewArticle(context.Background(), fresh))

	require.NotNil(t, store.articles[3].GroupID)
	assert.Equal(t, *store.articles[1].GroupID, *store.articles[3].GroupID)
}

func TestClusterNewArticleRespectsOnePerSource(t *testing.T) {
	existing := climateArticle(1, 1)
	partner := climateArticle(2, 2)

	store := newFakeStore(existing, partner)

	_, err := store.CreateClusterWithMembers(context.Background(), existing.Title, existing.ID, []int64{1, 2}, 15)
	require.NoError(t, err)

	// Same source as an existing member: the attach is rejected and no new
	// cluster forms from already clustered partners.
	fresh := climateArticle(3, 2)
	store.articles[3] = &fresh

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.ClusterNewArticle(context.Background(), fresh))
	assert.Nil(t, store.articles[3].GroupID)
}

func TestClusterNewArticleFormsNewCluster(t *testing.T) {
	unclustered := climateArticle(1, 1)
	store := newFakeStore(unclustered)

	fresh := climateArticle(2, 2)
	store.articles[2] = &fresh

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.ClusterNewArticle(context.Background(), fresh))

	require.NotNil(t, store.articles[1].GroupID)
	require.NotNil(t, store.articles[2].GroupID)
	assert.Equal(t, *store.articles[1].GroupID, *store.articles[2].GroupID)
}

func TestRunIncrementalRoutesRecentArticles(t *testing.T) {
	existing := climateArticle(1, 1)
	partner := climateArticle(2, 2)

	store := newFakeStore(existing, partner)

	_, err := store.CreateClusterWithMembers(context.Background(), existing.Title, existing.ID, []int64{1, 2}, 15)
	require.NoError(t, err)

	fresh := climateArticle(3, 3)
	store.articles[3] = &fresh

	stale := climateArticle(4, 4)
	stale.PublishedAt = time.Now().Add(-48 * time.Hour)
	store.articles[4] = &stale

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	routed, err := engine.RunIncremental(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, routed, "only the in-window article is routed")
	require.NotNil(t, store.articles[3].GroupID, "fresh article attaches to the existing cluster")
	assert.Equal(t, *store.articles[1].GroupID, *store.articles[3].GroupID)
	assert.Nil(t, store.articles[4].GroupID, "article outside the window waits for the batch pass")
}

func TestClusterNewArticleShortSummarySkipped(t *testing.T) {
	store := newFakeStore(climateArticle(1, 1))

	fresh := domain.Article{ID: 2, SourceID: 2, Title: "Valid headline", Summary: "too short"}

	engine := NewEngine(store, nil, nil, testConfig(), nopLogger())

	require.NoError(t, engine.ClusterNewArticle(context.Background(), fresh))
	assert.Nil(t, store.articles[1].GroupID)
}
