package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MockProvider is a scriptable provider for tests. Unset functions fall back
// to fixed deterministic responses.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	EmbedFunc    func(ctx context.Context, text string) ([]float32, error)
}

func (p *MockProvider) Name() ProviderName {
	return ProviderMock
}

func (p *MockProvider) IsAvailable(_ context.Context) bool {
	return true
}

func (p *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, prompt)
	}

	return `{"similarity": 0.9, "isMatch": true, "reasoning": "mock"}`, nil
}

func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, text)
	}

	return []float32{1, 0, 0}, nil
}

// NewWithProvider builds a client around an explicit provider, bypassing
// selection. Tests use it to drive the full retry and parse path.
func NewWithProvider(p Provider, timeout time.Duration, maxAttempts int, logger *zerolog.Logger) Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &client{
		provider:    p,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

var _ Provider = (*MockProvider)(nil)
