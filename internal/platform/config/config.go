// Package config loads environment-driven configuration for all pipeline
// components. A .env file is honored in local development.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Fallback similarity modes used by the clustering engine when no LLM
// provider is reachable.
const (
	FallbackSimilarityTitle    = "title"
	FallbackSimilarityWeighted = "weighted"
)

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"meridian"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"meridian"`

	// Full-text index
	SolrURL        string        `env:"SOLR_URL"`
	SolrCollection string        `env:"SOLR_COLLECTION" envDefault:"articles"`
	SolrTimeout    time.Duration `env:"SOLR_TIMEOUT" envDefault:"10s"`

	// LLM providers. OpenAI wins over Gemini wins over the local Ollama
	// endpoint; selection happens once per process.
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIModel      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel      string `env:"OLLAMA_MODEL" envDefault:"llama3.1:8b"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMMaxAttempts   int           `env:"LLM_MAX_ATTEMPTS" envDefault:"3"`
	LLMRateRPS       float64       `env:"LLM_RATE_RPS" envDefault:"1"`

	// Embeddings
	EmbeddingDimensions int `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`

	// Ingestion
	FetchIntervalMinutes int `env:"FETCH_INTERVAL_MINUTES" envDefault:"30"`
	FeedConcurrency      int `env:"FEED_CONCURRENCY" envDefault:"8"`
	MaxArticlesPerRun    int `env:"MAX_ARTICLES_PER_RUN" envDefault:"-1"`

	// Clustering thresholds
	SemanticThreshold        float64 `env:"SEMANTIC_THRESHOLD" envDefault:"0.3"`
	EmbeddingThreshold       float64 `env:"EMBEDDING_THRESHOLD" envDefault:"0.55"`
	EmbeddingThresholdStrict float64 `env:"EMBEDDING_THRESHOLD_STRICT" envDefault:"0.70"`
	StrictEmbeddingMode      bool    `env:"STRICT_EMBEDDING_MODE" envDefault:"false"`
	LLMThreshold             float64 `env:"LLM_THRESHOLD" envDefault:"0.75"`
	ClusterMaxSize           int     `env:"CLUSTER_MAX_SIZE" envDefault:"15"`
	ClusterMaxPerSource      int     `env:"CLUSTER_MAX_PER_SOURCE" envDefault:"50"`
	ClusterTopCandidates     int     `env:"CLUSTER_TOP_CANDIDATES" envDefault:"10"`
	IncrementalWindowHours   int     `env:"INCREMENTAL_WINDOW_HOURS" envDefault:"24"`
	FallbackSimilarity       string  `env:"CLUSTER_FALLBACK_SIMILARITY" envDefault:"weighted"`

	// Scheduler
	CleanupIntervalHours int  `env:"CLEANUP_INTERVAL_HOURS" envDefault:"6"`
	SchedulerSequential  bool `env:"SCHEDULER_SEQUENTIAL" envDefault:"true"`

	// HTTP
	APIPort    int `env:"API_PORT" envDefault:"8080"`
	HealthPort int `env:"HEALTH_PORT" envDefault:"8081"`
}

const (
	maxIncrementalWindowHours = 48
	minFetchIntervalMinutes   = 5
)

// Load reads configuration from the environment, honoring an optional .env.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyBounds(cfg)

	return cfg, nil
}

func applyBounds(cfg *Config) {
	if cfg.IncrementalWindowHours > maxIncrementalWindowHours {
		cfg.IncrementalWindowHours = maxIncrementalWindowHours
	}

	if cfg.IncrementalWindowHours <= 0 {
		cfg.IncrementalWindowHours = 24
	}

	if cfg.FetchIntervalMinutes < minFetchIntervalMinutes {
		cfg.FetchIntervalMinutes = minFetchIntervalMinutes
	}

	if cfg.FallbackSimilarity != FallbackSimilarityTitle {
		cfg.FallbackSimilarity = FallbackSimilarityWeighted
	}
}

// PostgresDSN assembles a pgx connection string from the discrete DB settings.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword), c.DBHost, c.DBPort, c.DBName)
}

// EffectiveEmbeddingThreshold returns the stage-two cosine threshold for the
// configured mode.
func (c *Config) EffectiveEmbeddingThreshold() float64 {
	if c.StrictEmbeddingMode {
		return c.EmbeddingThresholdStrict
	}

	return c.EmbeddingThreshold
}
