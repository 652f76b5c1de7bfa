package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/meridianews/meridian/internal/platform/config"
)

const (
	openaiTemperature    = 0.2
	openaiEmbeddingModel = openai.SmallEmbedding3
	rateLimiterBurst     = 5
)

type openaiProvider struct {
	cfg         *config.Config
	client      *openai.Client
	rateLimiter *rate.Limiter
}

func newOpenAIProvider(cfg *config.Config) *openaiProvider {
	return &openaiProvider{
		cfg:         cfg,
		client:      openai.NewClient(cfg.OpenAIAPIKey),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.LLMRateRPS), rateLimiterBurst),
	}
}

func (p *openaiProvider) Name() ProviderName {
	return ProviderOpenAI
}

func (p *openaiProvider) IsAvailable(_ context.Context) bool {
	return p.cfg.OpenAIAPIKey != ""
}

func (p *openaiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.OpenAIModel,
		Temperature: openaiTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUnparseable)
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openaiEmbeddingModel,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnparseable)
	}

	return resp.Data[0].Embedding, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, err)
	}

	return fmt.Errorf("openai request: %w", err)
}

var _ Provider = (*openaiProvider)(nil)
