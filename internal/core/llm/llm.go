package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/platform/config"
	"github.com/meridianews/meridian/internal/platform/observability"
)

// ArticleInput is the slice of an article a prompt needs.
type ArticleInput struct {
	ID         int64
	Title      string
	Summary    string
	SourceName string
	SourceBias string
}

// ArticleBias is one article's scores from a bias analysis. All scores are
// on the model's 0-10 scale; the analyzer converts to storage ranges.
type ArticleBias struct {
	ArticleID      int64   `json:"articleId"`
	BiasScore      float64 `json:"biasScore"`
	LeftBias       float64 `json:"leftBias"`
	RightBias      float64 `json:"rightBias"`
	Sensationalism float64 `json:"sensationalism"`
	Reasoning      string  `json:"reasoning"`
}

// BiasAnalysis is the normalised result of a cluster bias analysis.
type BiasAnalysis struct {
	MostUnbiasedArticleID int64         `json:"mostUnbiasedArticleId"`
	NeutralSummary        string        `json:"neutralSummary"`
	BiasSummary           string        `json:"biasSummary"`
	Articles              []ArticleBias `json:"articles"`
}

// SimilarityJudgment is the result of a pairwise similarity call.
type SimilarityJudgment struct {
	Similarity float64 `json:"similarity"`
	IsMatch    bool    `json:"isMatch"`
	Reasoning  string  `json:"reasoning"`
}

// Client is the language-model surface the pipeline depends on.
type Client interface {
	// AnalyzeClusterBias scores every article of a cluster and produces the
	// cluster-level neutral summary and most-neutral pick.
	AnalyzeClusterBias(ctx context.Context, articles []ArticleInput) (BiasAnalysis, error)

	// JudgeSimilarity asks whether two articles report the same event.
	JudgeSimilarity(ctx context.Context, a, b ArticleInput) (SimilarityJudgment, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ProviderName reports which backend was selected.
	ProviderName() ProviderName
}

type client struct {
	provider    Provider
	timeout     time.Duration
	maxAttempts int
	logger      *zerolog.Logger
}

// New selects a provider and returns a client bound to it. Selection runs
// once here: an OpenAI key wins, then a Gemini key, then a reachable Ollama
// instance. ErrNoProvider when none qualifies.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (Client, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	provider, err := selectProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("provider", string(provider.Name())).Msg("selected LLM provider")

	maxAttempts := cfg.LLMMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &client{
		provider:    provider,
		timeout:     cfg.LLMTimeout,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

func selectProvider(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (Provider, error) {
	if cfg.OpenAIAPIKey != "" {
		return newOpenAIProvider(cfg), nil
	}

	if cfg.GeminiAPIKey != "" {
		p, err := newGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating gemini provider: %w", err)
		}

		return p, nil
	}

	ollama := newOllamaProvider(cfg)
	if ollama.IsAvailable(ctx) {
		return ollama, nil
	}

	logger.Warn().Str("url", cfg.OllamaURL).Msg("no remote key and local provider unreachable")

	return nil, ErrNoProvider
}

func (c *client) ProviderName() ProviderName {
	return c.provider.Name()
}

func (c *client) AnalyzeClusterBias(ctx context.Context, articles []ArticleInput) (BiasAnalysis, error) {
	prompt := buildBiasAnalysisPrompt(articles)

	raw, err := c.complete(ctx, "analyze_bias", prompt)
	if err != nil {
		return BiasAnalysis{}, err
	}

	var analysis BiasAnalysis
	if err := decodeJSON(raw, &analysis); err != nil {
		return BiasAnalysis{}, err
	}

	normalizeBiasAnalysis(&analysis, articles)

	return analysis, nil
}

func (c *client) JudgeSimilarity(ctx context.Context, a, b ArticleInput) (SimilarityJudgment, error) {
	prompt := buildSimilarityPrompt(a, b)

	raw, err := c.complete(ctx, "judge_similarity", prompt)
	if err != nil {
		return SimilarityJudgment{}, err
	}

	var judgment SimilarityJudgment
	if err := decodeJSON(raw, &judgment); err != nil {
		return SimilarityJudgment{}, err
	}

	judgment.Similarity = clamp(judgment.Similarity, 0, 1)

	return judgment, nil
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	var vector []float32

	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		vector, callErr = c.provider.Embed(callCtx, text)

		return callErr
	})

	observability.LLMRequestDuration.WithLabelValues(string(c.provider.Name()), "embed").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}

	return vector, nil
}

// complete runs one prompt through the provider with the shared timeout and
// retry policy and records the request duration.
func (c *client) complete(ctx context.Context, operation, prompt string) (string, error) {
	start := time.Now()

	var raw string

	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		raw, callErr = c.provider.Complete(callCtx, prompt)

		return callErr
	})

	observability.LLMRequestDuration.WithLabelValues(string(c.provider.Name()), operation).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", err
	}

	return raw, nil
}

// withRetry runs fn up to maxAttempts times with a per-attempt timeout and
// linear backoff (1s * attempt). The parent context cancels the whole loop.
func (c *client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)

		cancel()

		if err == nil {
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s", ErrTimeout, err)
		}

		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		if attempt < c.maxAttempts {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("LLM call failed, retrying")

			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return lastErr
			}
		}
	}

	return lastErr
}

// decodeJSON extracts the first balanced JSON substring from raw model
// output and unmarshals it.
func decodeJSON(raw string, target any) error {
	candidate := extractJSON(raw)
	if candidate == "" {
		return fmt.Errorf("%w: no JSON in response", ErrUnparseable)
	}

	if err := json.Unmarshal([]byte(candidate), target); err != nil {
		return fmt.Errorf("%w: %s", ErrUnparseable, err)
	}

	return nil
}
