package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianews/meridian/internal/platform/config"
)

const ollamaProbeTimeout = 5 * time.Second

// ollamaProvider talks to a local Ollama instance over its plain HTTP API.
type ollamaProvider struct {
	cfg    *config.Config
	client *http.Client
}

func newOllamaProvider(cfg *config.Config) *ollamaProvider {
	return &ollamaProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *ollamaProvider) Name() ProviderName {
	return ProviderOllama
}

// IsAvailable probes /api/tags and requires both the generation and the
// embedding model to be pulled.
func (p *ollamaProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.cfg.OllamaURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}

	return modelListed(names, p.cfg.OllamaModel) && modelListed(names, p.cfg.OllamaEmbedModel)
}

// modelListed matches exactly or ignoring the tag suffix, so "llama3.1"
// matches a pulled "llama3.1:8b".
func modelListed(names []string, model string) bool {
	for _, name := range names {
		if name == model {
			return true
		}

		if base, _, ok := strings.Cut(name, ":"); ok && base == model {
			return true
		}
	}

	return false
}

func (p *ollamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  p.cfg.OllamaModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0.2,
		},
	}

	var result struct {
		Response string `json:"response"`
	}

	if err := p.post(ctx, "/api/generate", payload, &result); err != nil {
		return "", err
	}

	if result.Response == "" {
		return "", fmt.Errorf("%w: empty ollama response", ErrUnparseable)
	}

	return result.Response, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model":  p.cfg.OllamaEmbedModel,
		"prompt": text,
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}

	if err := p.post(ctx, "/api/embeddings", payload, &result); err != nil {
		return nil, err
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnparseable)
	}

	return result.Embedding, nil
}

func (p *ollamaProvider) post(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.OllamaURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ollama request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: ollama returned 429", ErrRateLimited)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("ollama %s returned %d: %s", path, resp.StatusCode, string(detail))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %s", ErrUnparseable, err)
	}

	return nil
}

var _ Provider = (*ollamaProvider)(nil)
