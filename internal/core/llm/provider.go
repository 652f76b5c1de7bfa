package llm

import (
	"context"
	"errors"
)

// ProviderName identifies an LLM provider.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderGemini ProviderName = "gemini"
	ProviderOllama ProviderName = "ollama"
	ProviderMock   ProviderName = "mock"
)

// Error kinds surfaced to callers. Callers switch on these with errors.Is.
var (
	ErrNoProvider  = errors.New("no LLM provider configured")
	ErrTimeout     = errors.New("LLM request timed out")
	ErrRateLimited = errors.New("LLM provider rate limited")
	ErrUnparseable = errors.New("LLM response could not be parsed")
)

// Provider is a raw generation and embedding backend. The client layers
// prompts, retries, timeouts and response normalisation on top.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable reports whether the provider is configured and reachable.
	// Selection happens once per process; no mid-operation fallback.
	IsAvailable(ctx context.Context) bool

	// Complete sends a single prompt and returns the raw model output.
	Complete(ctx context.Context, prompt string) (string, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
