package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/meridianews/meridian/internal/platform/config"
)

const (
	geminiTemperature    = 0.2
	geminiEmbeddingModel = "text-embedding-004"
)

type geminiProvider struct {
	cfg         *config.Config
	client      *genai.Client
	rateLimiter *rate.Limiter
}

func newGeminiProvider(ctx context.Context, cfg *config.Config) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &geminiProvider{
		cfg:         cfg,
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.LLMRateRPS), rateLimiterBurst),
	}, nil
}

func (p *geminiProvider) Name() ProviderName {
	return ProviderGemini
}

func (p *geminiProvider) IsAvailable(_ context.Context) bool {
	return p.cfg.GeminiAPIKey != ""
}

func (p *geminiProvider) Close() error {
	if p.client == nil {
		return nil
	}

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing genai client: %w", err)
	}

	return nil
}

func (p *geminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	model := p.client.GenerativeModel(p.cfg.GeminiModel)
	model.SetTemperature(geminiTemperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := geminiResponseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty gemini response", ErrUnparseable)
	}

	return text, nil
}

func (p *geminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	model := p.client.EmbeddingModel(geminiEmbeddingModel)

	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnparseable)
	}

	return resp.Embedding.Values, nil
}

func geminiResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}

		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}

	return sb.String()
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, err)
	}

	return fmt.Errorf("gemini request: %w", err)
}

var _ Provider = (*geminiProvider)(nil)
