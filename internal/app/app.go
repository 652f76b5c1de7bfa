// Package app wires the pipeline together and exposes the operational
// entrypoints:
//
//   - Seed: upsert the curated source list and reseed denormalized bias
//   - Ingest: poll every fetchable feed once
//   - Enrich: clustering cascade, bias analysis, coverage, indexing
//   - Cleanup: invariant repair over existing clusters
//   - Schedule: ticker-driven ingest/enrich/cleanup loops
//   - Serve: the HTTP read API plus health and metrics
//
// Each entrypoint can run standalone or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/api"
	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/embeddings"
	"github.com/meridianews/meridian/internal/core/index"
	"github.com/meridianews/meridian/internal/core/llm"
	"github.com/meridianews/meridian/internal/ingest/feeds"
	"github.com/meridianews/meridian/internal/ingest/seed"
	"github.com/meridianews/meridian/internal/platform/config"
	"github.com/meridianews/meridian/internal/platform/observability"
	"github.com/meridianews/meridian/internal/platform/worker"
	"github.com/meridianews/meridian/internal/process/bias"
	"github.com/meridianews/meridian/internal/process/cluster"
	"github.com/meridianews/meridian/internal/process/coverage"
	db "github.com/meridianews/meridian/internal/storage"
)

const (
	indexBatchSize      = 200
	apiShutdownTimeout  = 5 * time.Second
	apiReadHeaderLimit  = 10 * time.Second
	enrichTaskName      = "enrich"
	ingestTaskName      = "ingest"
	cleanupTaskName     = "cleanup"
	msgNoProviderEnrich = "no LLM provider reachable, cascade falls back to textual similarity"
)

// App holds the application dependencies and provides the run modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	llmClient llm.Client
	llmProbed bool
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// newLLMClient selects a provider once per process. A nil client means no
// provider is reachable; every consumer degrades explicitly in that case.
func (a *App) newLLMClient(ctx context.Context) llm.Client {
	if a.llmProbed {
		return a.llmClient
	}

	a.llmProbed = true

	client, err := llm.New(ctx, a.cfg, a.logger)
	if err != nil {
		if errors.Is(err, llm.ErrNoProvider) {
			a.logger.Warn().Msg(msgNoProviderEnrich)
		} else {
			a.logger.Warn().Err(err).Msg("LLM provider init failed")
		}

		return nil
	}

	a.llmClient = client

	return client
}

func (a *App) newIndexClient() *index.Client {
	return index.New(index.Config{
		BaseURL: solrCollectionURL(a.cfg),
		Timeout: a.cfg.SolrTimeout,
	})
}

func solrCollectionURL(cfg *config.Config) string {
	if cfg.SolrURL == "" {
		return ""
	}

	return cfg.SolrURL + "/" + cfg.SolrCollection
}

func (a *App) clusterConfig() cluster.Config {
	return cluster.Config{
		SemanticThreshold:  a.cfg.SemanticThreshold,
		EmbeddingThreshold: a.cfg.EffectiveEmbeddingThreshold(),
		LLMThreshold:       a.cfg.LLMThreshold,
		MaxSize:            a.cfg.ClusterMaxSize,
		MaxPerSource:       a.cfg.ClusterMaxPerSource,
		MaxTotal:           a.cfg.MaxArticlesPerRun,
		TopCandidates:      a.cfg.ClusterTopCandidates,
		IncrementalWindow:  time.Duration(a.cfg.IncrementalWindowHours) * time.Hour,
		FallbackSimilarity: a.cfg.FallbackSimilarity,
	}
}

func (a *App) newEngine(ctx context.Context) (*cluster.Engine, *bias.Analyzer) {
	llmClient := a.newLLMClient(ctx)

	var (
		embedService *embeddings.Service
		analyzer     *bias.Analyzer
	)

	if llmClient != nil {
		embedService = embeddings.NewService(llmClient, a.cfg.EmbeddingDimensions, a.logger)
		analyzer = bias.NewAnalyzer(a.database, llmClient, a.logger)

		engine := cluster.NewEngine(a.database, embedService, llmClient, a.clusterConfig(), a.logger)

		return engine, analyzer
	}

	// No provider: textual fallback replaces embeddings and the LLM stage is
	// skipped. Clusters still form; analysis waits for a provider.
	engine := cluster.NewEngine(a.database, nil, nil, a.clusterConfig(), a.logger)

	return engine, bias.NewAnalyzer(a.database, nil, a.logger)
}

// RunSeed upserts the curated source list.
func (a *App) RunSeed(ctx context.Context) error {
	seeder := seed.NewSeeder(a.database, a.logger)

	n, err := seeder.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}

	a.logger.Info().Int("sources", n).Msg("sources seeded")

	return nil
}

// RunIngest polls every fetchable feed once.
func (a *App) RunIngest(ctx context.Context) error {
	reader := feeds.NewReader(a.database, a.cfg.FeedConcurrency, a.logger)

	inserted, err := reader.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest feeds: %w", err)
	}

	a.logger.Info().Int("inserted", inserted).Msg("ingestion complete")

	return nil
}

// RunEnrich runs one enrichment pass: route recent articles through the
// incremental attach path, cluster the remaining backlog, analyze pending
// clusters, recompute coverage, derive blindspots and push the index.
func (a *App) RunEnrich(ctx context.Context) error {
	engine, analyzer := a.newEngine(ctx)
	tracker := coverage.NewTracker(a.database, a.logger)

	engine.SetOnClusterCreated(a.clusterCreatedHook(tracker, analyzer))

	routed, err := engine.RunIncremental(ctx)
	if err != nil {
		return fmt.Errorf("incremental clustering: %w", err)
	}

	if routed > 0 {
		a.logger.Info().Int("articles", routed).Msg("incremental pass complete")
	}

	created, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("clustering run: %w", err)
	}

	a.logger.Info().Int("clusters", created).Msg("clustering complete")

	a.updateBacklogGauge(ctx)

	if analyzer.Available() {
		analyzed, analyzeErr := analyzer.RunPending(ctx)
		if analyzeErr != nil {
			return fmt.Errorf("bias analysis run: %w", analyzeErr)
		}

		a.logger.Info().Int("analyzed", analyzed).Msg("bias analysis complete")
	}

	if err := tracker.RecomputeAll(ctx); err != nil {
		return fmt.Errorf("coverage recompute: %w", err)
	}

	emitted, err := tracker.DetectBlindspots(ctx)
	if err != nil {
		return fmt.Errorf("blindspot derivation: %w", err)
	}

	if emitted > 0 {
		a.logger.Info().Int("blindspots", emitted).Msg("blindspots emitted")
	}

	return a.indexStep(ctx)
}

// clusterCreatedHook runs right after a cluster is persisted: coverage is
// derived immediately so a stored cluster never lacks its record, then the
// cluster is analyzed when a provider is available.
func (a *App) clusterCreatedHook(tracker *coverage.Tracker, analyzer *bias.Analyzer) func(context.Context, int64) {
	return func(ctx context.Context, groupID int64) {
		if _, err := tracker.Recompute(ctx, groupID); err != nil {
			a.logger.Warn().Err(err).Int64("group", groupID).Msg("coverage recompute failed")
		}

		if !analyzer.Available() {
			return
		}

		if err := analyzer.AnalyzeCluster(ctx, groupID); err != nil {
			a.logger.Warn().Err(err).Int64("group", groupID).Msg("immediate analysis failed")
		}
	}
}

// indexStep pushes analyzed articles to the full-text index in batches. A
// disabled index is a no-op, not an error.
func (a *App) indexStep(ctx context.Context) error {
	client := a.newIndexClient()
	if !client.Enabled() {
		return nil
	}

	for {
		articles, err := a.database.ListAnalyzedUnindexed(ctx, indexBatchSize)
		if err != nil {
			return fmt.Errorf("list unindexed: %w", err)
		}

		if len(articles) == 0 {
			return nil
		}

		for _, art := range articles {
			if err := client.Index(ctx, articleDocument(art)); err != nil {
				return fmt.Errorf("index article %d: %w", art.ID, err)
			}

			if err := a.database.MarkArticleIndexed(ctx, art.ID); err != nil {
				return fmt.Errorf("mark indexed: %w", err)
			}

			observability.ArticlesIndexed.Inc()
		}
	}
}

func articleDocument(art domain.Article) index.Document {
	doc := index.Document{
		ID:         strconv.FormatInt(art.ID, 10),
		Title:      art.Title,
		Summary:    art.Summary,
		Link:       art.Link,
		ImageURL:   art.ImageURL,
		Published:  art.PublishedAt,
		SourceID:   art.SourceID,
		SourceName: art.SourceName,
		SourceBias: string(art.Bias),
	}

	if art.GroupID != nil {
		doc.GroupID = *art.GroupID
	}

	if art.PoliticalLeaning != nil {
		doc.PoliticalLeaning = *art.PoliticalLeaning
	}

	if art.Sensationalism != nil {
		doc.Sensationalism = *art.Sensationalism
	}

	doc.FramingSummary = art.FramingSummary

	return doc
}

// RunFull runs ingest followed by enrich.
func (a *App) RunFull(ctx context.Context) error {
	if err := a.RunIngest(ctx); err != nil {
		return err
	}

	return a.RunEnrich(ctx)
}

// RunCleanup repairs cluster invariants and refreshes coverage afterwards.
func (a *App) RunCleanup(ctx context.Context) error {
	engine, _ := a.newEngine(ctx)

	if err := engine.Cleanup(ctx); err != nil {
		return fmt.Errorf("cluster cleanup: %w", err)
	}

	tracker := coverage.NewTracker(a.database, a.logger)
	if err := tracker.RecomputeAll(ctx); err != nil {
		return fmt.Errorf("coverage recompute: %w", err)
	}

	return nil
}

// ResetAnalysis clears analysis-failure latches so those clusters are
// retried on the next enrichment pass.
func (a *App) ResetAnalysis(ctx context.Context) error {
	n, err := a.database.ResetFailedAnalyses(ctx)
	if err != nil {
		return fmt.Errorf("reset analyses: %w", err)
	}

	a.logger.Info().Int64("clusters", n).Msg("failed analyses reset")

	return nil
}

// RunSchedule runs the ticker loops until the context is canceled. With
// SchedulerSequential the enrichment pass runs inside the ingest task so the
// two never overlap; otherwise they tick independently.
func (a *App) RunSchedule(ctx context.Context) error {
	go func() {
		if err := a.StartHealthServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health server stopped")
		}
	}()

	fetchInterval := time.Duration(a.cfg.FetchIntervalMinutes) * time.Minute
	cleanupInterval := time.Duration(a.cfg.CleanupIntervalHours) * time.Hour

	var tasks []worker.TickerTask

	if a.cfg.SchedulerSequential {
		tasks = append(tasks, worker.TickerTask{
			Name:       ingestTaskName,
			Interval:   fetchInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) {
				if err := a.RunFull(ctx); err != nil {
					a.logger.Error().Err(err).Msg("scheduled run failed")
				}
			},
		})
	} else {
		tasks = append(tasks,
			worker.TickerTask{
				Name:       ingestTaskName,
				Interval:   fetchInterval,
				RunOnStart: true,
				Run: func(ctx context.Context) {
					if err := a.RunIngest(ctx); err != nil {
						a.logger.Error().Err(err).Msg("scheduled ingest failed")
					}
				},
			},
			worker.TickerTask{
				Name:     enrichTaskName,
				Interval: fetchInterval,
				Run: func(ctx context.Context) {
					if err := a.RunEnrich(ctx); err != nil {
						a.logger.Error().Err(err).Msg("scheduled enrich failed")
					}
				},
			},
		)
	}

	tasks = append(tasks, worker.TickerTask{
		Name:     cleanupTaskName,
		Interval: cleanupInterval,
		Run: func(ctx context.Context) {
			if err := a.RunCleanup(ctx); err != nil {
				a.logger.Error().Err(err).Msg("scheduled cleanup failed")
			}
		},
	})

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:   "scheduler",
		Tasks:  tasks,
		Logger: a.logger,
	})
}

// RunServe serves the read API until the context is canceled. Health and
// metrics run on their own port.
func (a *App) RunServe(ctx context.Context) error {
	go func() {
		if err := a.StartHealthServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health server stopped")
		}
	}()

	server := api.NewServer(a.database, a.newIndexClient(), a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.APIPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: apiReadHeaderLimit,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		defer cancel()

		//nolint:errcheck,contextcheck // shutdown on signal is best-effort
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info().Int("port", a.cfg.APIPort).Msg("API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}

// Status summarizes pipeline state for the status command.
type Status struct {
	TotalArticles    int64
	Unclustered      int64
	TotalClusters    int64
	AnalyzedClusters int64
	ActiveBlindspots int64
	AnalysisJobs     map[string]int64
}

// Status reads the pipeline counters.
func (a *App) Status(ctx context.Context) (Status, error) {
	var s Status

	var err error

	if s.TotalArticles, s.Unclustered, err = a.database.CountArticles(ctx); err != nil {
		return Status{}, err
	}

	if s.TotalClusters, s.AnalyzedClusters, err = a.database.CountClusters(ctx); err != nil {
		return Status{}, err
	}

	if s.ActiveBlindspots, err = a.database.CountActiveBlindspots(ctx); err != nil {
		return Status{}, err
	}

	if s.AnalysisJobs, err = a.database.CountAnalysisJobs(ctx); err != nil {
		return Status{}, err
	}

	return s, nil
}

func (a *App) updateBacklogGauge(ctx context.Context) {
	_, unclustered, err := a.database.CountArticles(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("backlog count failed")

		return
	}

	observability.UnclusteredBacklog.Set(float64(unclustered))
}
