// Package cluster groups articles that report the same underlying event
// across ideologically different outlets. Candidate pairs run through a
// three-stage cascade (keyword composite, embedding cosine, LLM judgment)
// and surviving pairs are assembled greedily under the membership
// invariants: at most one article per source, bounded size, cross-source
// pairs only.
package cluster

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/embeddings"
	"github.com/meridianews/meridian/internal/core/llm"
	"github.com/meridianews/meridian/internal/platform/observability"
	"github.com/meridianews/meridian/internal/process/keywords"
	db "github.com/meridianews/meridian/internal/storage"
)

const minSummaryLength = 20

type store interface {
	ListUnclusteredArticles(ctx context.Context, minSummaryLen int) ([]domain.Article, error)
	ListRecentArticles(ctx context.Context, since time.Time, excludeSourceID int64) ([]domain.Article, error)
	GetArticleEmbedding(ctx context.Context, articleID int64) ([]float32, error)
	SetArticleEmbedding(ctx context.Context, articleID int64, embedding []float32) error
	CreateClusterWithMembers(ctx context.Context, name string, masterID int64, memberIDs []int64, maxSize int) (int64, error)
	AttachArticleToCluster(ctx context.Context, articleID, groupID int64, maxSize int) error
	SetClusterMaster(ctx context.Context, groupID, masterID int64, name string) error
	ListClusterIDs(ctx context.Context) ([]int64, error)
	GetClusterArticles(ctx context.Context, groupID int64) ([]domain.Article, error)
	UngroupArticles(ctx context.Context, articleIDs []int64) error
	DissolveCluster(ctx context.Context, groupID int64) error
}

// judge is the LLM verification stage. Nil when no provider is configured.
type judge interface {
	JudgeSimilarity(ctx context.Context, a, b llm.ArticleInput) (llm.SimilarityJudgment, error)
}

// Config bounds the sampling and the cascade thresholds.
type Config struct {
	SemanticThreshold  float64
	EmbeddingThreshold float64
	LLMThreshold       float64
	MaxSize            int
	MaxPerSource       int
	MaxTotal           int
	TopCandidates      int
	IncrementalWindow  time.Duration
	FallbackSimilarity string
}

// Engine runs the clustering cascade.
type Engine struct {
	store      store
	embeddings *embeddings.Service
	judge      judge
	cfg        Config
	logger     *zerolog.Logger

	// onCluster is invoked after a cluster is persisted, for immediate
	// bias analysis. Failures there never unwind the cluster.
	onCluster func(ctx context.Context, groupID int64)
}

func NewEngine(store store, emb *embeddings.Service, judge judge, cfg Config, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Engine{
		store:      store,
		embeddings: emb,
		judge:      judge,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetOnClusterCreated registers the immediate enrichment hook.
func (e *Engine) SetOnClusterCreated(fn func(ctx context.Context, groupID int64)) {
	e.onCluster = fn
}

// Run executes one batch clustering pass over the unclustered backlog.
// Returns the number of clusters created.
func (e *Engine) Run(ctx context.Context) (int, error) {
	articles, err := e.store.ListUnclusteredArticles(ctx, minSummaryLength)
	if err != nil {
		return 0, err
	}

	observability.UnclusteredBacklog.Set(float64(len(articles)))

	sample := balancedSample(articles, e.cfg.MaxTotal, e.cfg.MaxPerSource)
	if len(sample) < 2 {
		return 0, nil
	}

	pairs := e.cascade(ctx, sample)

	created := e.assemble(ctx, sample, pairs)

	e.logger.Info().
		Int("articles", len(sample)).
		Int("pairs", len(pairs)).
		Int("clusters", created).
		Msg("clustering pass complete")

	return created, nil
}

// balancedSample caps the batch at maxTotal articles (-1 unlimited) and
// maxPerSource per source, drawing round-robin across sources so no outlet
// dominates the pass. The result is in ascending id order.
func balancedSample(articles []domain.Article, maxTotal, maxPerSource int) []domain.Article {
	perSource := make(map[int64][]domain.Article)

	var sourceOrder []int64

	for _, a := range articles {
		if maxPerSource > 0 && len(perSource[a.SourceID]) >= maxPerSource {
			continue
		}

		if len(perSource[a.SourceID]) == 0 {
			sourceOrder = append(sourceOrder, a.SourceID)
		}

		perSource[a.SourceID] = append(perSource[a.SourceID], a)
	}

	var sample []domain.Article

	for idx := 0; ; idx++ {
		progressed := false

		for _, src := range sourceOrder {
			bucket := perSource[src]
			if idx >= len(bucket) {
				continue
			}

			if maxTotal > 0 && len(sample) >= maxTotal {
				break
			}

			sample = append(sample, bucket[idx])
			progressed = true
		}

		if !progressed || (maxTotal > 0 && len(sample) >= maxTotal) {
			break
		}
	}

	sort.Slice(sample, func(i, j int) bool { return sample[i].ID < sample[j].ID })

	return sample
}

// pair joins two articles by their index into the sampled slice, a < b by
// article id.
type pair struct {
	a, b int
}

// cascade prunes candidate pairs through the three stages. Only cross-source
// pairs are ever considered.
func (e *Engine) cascade(ctx context.Context, sample []domain.Article) []pair {
	pairs := e.semanticStage(sample)
	observability.CascadePairs.WithLabelValues("semantic").Add(float64(len(pairs)))

	pairs = e.embeddingStage(ctx, sample, pairs)
	observability.CascadePairs.WithLabelValues("embedding").Add(float64(len(pairs)))

	if e.judge != nil {
		pairs = e.llmStage(ctx, sample, pairs)
		observability.CascadePairs.WithLabelValues("llm").Add(float64(len(pairs)))
	}

	return pairs
}

// semanticStage keeps, for each article, its top-M partners whose keyword
// composite clears the semantic threshold.
func (e *Engine) semanticStage(sample []domain.Article) []pair {
	profiles := make([]keywords.Profile, len(sample))
	for i, a := range sample {
		profiles[i] = keywords.Extract(a.Title, a.Summary)
	}

	type scored struct {
		idx   int
		score float64
	}

	kept := make(map[pair]bool)

	for i := range sample {
		var candidates []scored

		for j := range sample {
			if i == j || sample[i].SourceID == sample[j].SourceID {
				continue
			}

			score := keywords.CompositeScore(profiles[i], profiles[j])
			if score >= e.cfg.SemanticThreshold {
				candidates = append(candidates, scored{idx: j, score: score})
			}
		}

		sort.SliceStable(candidates, func(x, y int) bool {
			if candidates[x].score != candidates[y].score {
				return candidates[x].score > candidates[y].score
			}

			return sample[candidates[x].idx].ID < sample[candidates[y].idx].ID
		})

		if e.cfg.TopCandidates > 0 && len(candidates) > e.cfg.TopCandidates {
			candidates = candidates[:e.cfg.TopCandidates]
		}

		for _, c := range candidates {
			kept[orderedPair(sample, i, c.idx)] = true
		}
	}

	return sortedPairs(sample, kept)
}

// embeddingStage keeps pairs whose title+summary embeddings are close. When
// no provider is configured the textual fallback similarity stands in for
// the cosine.
func (e *Engine) embeddingStage(ctx context.Context, sample []domain.Article, pairs []pair) []pair {
	if e.judge == nil {
		return e.fallbackStage(sample, pairs)
	}

	vectors := make(map[int64][]float32)

	var kept []pair

	for _, p := range pairs {
		va := e.embeddingFor(ctx, sample[p.a], vectors)
		vb := e.embeddingFor(ctx, sample[p.b], vectors)

		if embeddings.CosineSimilarity(va, vb) >= e.cfg.EmbeddingThreshold {
			kept = append(kept, p)
		}
	}

	return kept
}

func (e *Engine) fallbackStage(sample []domain.Article, pairs []pair) []pair {
	var kept []pair

	for _, p := range pairs {
		sim := fallbackSimilarity(sample[p.a], sample[p.b], e.cfg.FallbackSimilarity)
		if sim >= e.cfg.EmbeddingThreshold {
			kept = append(kept, p)
		}
	}

	return kept
}

// embeddingFor returns the article's stored embedding, computing and
// persisting it on a miss. An empty vector means no signal and scores 0.
func (e *Engine) embeddingFor(ctx context.Context, a domain.Article, cache map[int64][]float32) []float32 {
	if vec, ok := cache[a.ID]; ok {
		return vec
	}

	vec, err := e.store.GetArticleEmbedding(ctx, a.ID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("article", a.ID).Msg("load embedding failed")
	}

	if len(vec) == 0 && e.embeddings != nil {
		vec = e.embeddings.EmbedArticle(ctx, a.Title, a.Summary)
		if len(vec) > 0 {
			if err := e.store.SetArticleEmbedding(ctx, a.ID, vec); err != nil {
				e.logger.Warn().Err(err).Int64("article", a.ID).Msg("persist embedding failed")
			}
		}
	}

	cache[a.ID] = vec

	return vec
}

// llmStage asks the provider to confirm each surviving pair. Judgment errors
// degrade to no match, never to a false positive.
func (e *Engine) llmStage(ctx context.Context, sample []domain.Article, pairs []pair) []pair {
	var kept []pair

	for _, p := range pairs {
		if ctx.Err() != nil {
			break
		}

		judgment, err := e.judge.JudgeSimilarity(ctx, articleInput(sample[p.a]), articleInput(sample[p.b]))
		if err != nil {
			e.logger.Warn().Err(err).
				Int64("article_a", sample[p.a].ID).
				Int64("article_b", sample[p.b].ID).
				Msg("similarity judgment failed")

			continue
		}

		if judgment.Similarity >= e.cfg.LLMThreshold {
			kept = append(kept, p)
		}
	}

	return kept
}

// assemble walks the pair graph greedily in ascending id order and persists
// clusters of two or more members.
func (e *Engine) assemble(ctx context.Context, sample []domain.Article, pairs []pair) int {
	partners := make(map[int][]int)
	for _, p := range pairs {
		partners[p.a] = append(partners[p.a], p.b)
		partners[p.b] = append(partners[p.b], p.a)
	}

	for _, list := range partners {
		sort.Slice(list, func(x, y int) bool { return sample[list[x]].ID < sample[list[y]].ID })
	}

	clustered := make(map[int]bool)
	created := 0

	for i := range sample {
		if clustered[i] || len(partners[i]) == 0 {
			continue
		}

		members := []int{i}
		usedSources := map[int64]bool{sample[i].SourceID: true}

		for _, j := range partners[i] {
			if clustered[j] || usedSources[sample[j].SourceID] {
				continue
			}

			if e.cfg.MaxSize > 0 && len(members) >= e.cfg.MaxSize {
				break
			}

			members = append(members, j)
			usedSources[sample[j].SourceID] = true
		}

		if len(members) < 2 {
			continue
		}

		memberIDs := make([]int64, len(members))
		for k, idx := range members {
			memberIDs[k] = sample[idx].ID
		}

		groupID, err := e.store.CreateClusterWithMembers(ctx, sample[i].Title, sample[i].ID, memberIDs, e.cfg.MaxSize)
		if err != nil {
			if errors.Is(err, db.ErrConstraintViolated) {
				e.logger.Warn().Int64("master", sample[i].ID).Msg("cluster rolled back, members stay unclustered")
			} else {
				e.logger.Error().Err(err).Int64("master", sample[i].ID).Msg("persist cluster failed")
			}

			continue
		}

		for _, idx := range members {
			clustered[idx] = true
		}

		observability.ClustersCreated.Inc()

		created++

		if e.onCluster != nil {
			e.onCluster(ctx, groupID)
		}
	}

	return created
}

func orderedPair(sample []domain.Article, i, j int) pair {
	if sample[i].ID < sample[j].ID {
		return pair{a: i, b: j}
	}

	return pair{a: j, b: i}
}

// sortedPairs flattens the pair set into ascending (a,b) id order so later
// stages and tie-breaks are deterministic.
func sortedPairs(sample []domain.Article, kept map[pair]bool) []pair {
	pairs := make([]pair, 0, len(kept))
	for p := range kept {
		pairs = append(pairs, p)
	}

	sort.Slice(pairs, func(x, y int) bool {
		if sample[pairs[x].a].ID != sample[pairs[y].a].ID {
			return sample[pairs[x].a].ID < sample[pairs[y].a].ID
		}

		return sample[pairs[x].b].ID < sample[pairs[y].b].ID
	})

	return pairs
}

func articleInput(a domain.Article) llm.ArticleInput {
	return llm.ArticleInput{
		ID:         a.ID,
		Title:      a.Title,
		Summary:    a.Summary,
		SourceName: a.SourceName,
		SourceBias: string(a.Bias),
	}
}
