package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/app"
	"github.com/meridianews/meridian/internal/platform/config"
	db "github.com/meridianews/meridian/internal/storage"
)

func main() {
	mode := flag.String("mode", "", "Service mode (seed-sources|ingest|enrich|full|cleanup|reset-analysis|status|config|schedule|serve)")
	interval := flag.Int("interval", 0, "Fetch interval override in minutes for schedule mode (minimum 5)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *interval >= 5 {
		cfg.FetchIntervalMinutes = *interval
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.PostgresDSN(), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, cfg, &logger, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")

			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, cfg *config.Config, logger *zerolog.Logger, mode string) error {
	switch mode {
	case "seed-sources":
		return application.RunSeed(ctx)
	case "ingest":
		return application.RunIngest(ctx)
	case "enrich":
		return application.RunEnrich(ctx)
	case "full":
		return application.RunFull(ctx)
	case "cleanup":
		return application.RunCleanup(ctx)
	case "reset-analysis":
		return application.ResetAnalysis(ctx)
	case "status":
		return printStatus(ctx, application, logger)
	case "config":
		printConfig(cfg, logger)

		return nil
	case "schedule":
		return application.RunSchedule(ctx)
	case "serve":
		return application.RunServe(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s --mode=[seed-sources|ingest|enrich|full|cleanup|reset-analysis|status|config|schedule|serve]\n", os.Args[0])
		os.Exit(2)

		return nil
	}
}

func printStatus(ctx context.Context, application *app.App, logger *zerolog.Logger) error {
	status, err := application.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	logger.Info().
		Int64("articles", status.TotalArticles).
		Int64("unclustered", status.Unclustered).
		Int64("clusters", status.TotalClusters).
		Int64("analyzed_clusters", status.AnalyzedClusters).
		Int64("active_blindspots", status.ActiveBlindspots).
		Interface("analysis_jobs", status.AnalysisJobs).
		Msg("pipeline status")

	return nil
}

// printConfig logs the effective settings. API keys are reported as
// presence flags only.
func printConfig(cfg *config.Config, logger *zerolog.Logger) {
	logger.Info().
		Str("app_env", cfg.AppEnv).
		Str("db_host", cfg.DBHost).
		Str("db_name", cfg.DBName).
		Bool("openai_key_set", cfg.OpenAIAPIKey != "").
		Bool("gemini_key_set", cfg.GeminiAPIKey != "").
		Str("ollama_url", cfg.OllamaURL).
		Str("solr_url", cfg.SolrURL).
		Int("fetch_interval_minutes", cfg.FetchIntervalMinutes).
		Float64("semantic_threshold", cfg.SemanticThreshold).
		Float64("embedding_threshold", cfg.EffectiveEmbeddingThreshold()).
		Float64("llm_threshold", cfg.LLMThreshold).
		Int("cluster_max_size", cfg.ClusterMaxSize).
		Int("incremental_window_hours", cfg.IncrementalWindowHours).
		Str("fallback_similarity", cfg.FallbackSimilarity).
		Bool("scheduler_sequential", cfg.SchedulerSequential).
		Int("api_port", cfg.APIPort).
		Msg("effective configuration")
}
