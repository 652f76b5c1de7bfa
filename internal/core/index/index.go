// Package index maintains the full-text article index in Apache Solr.
// One document per article, keyed by article id, refreshed after a
// successful bias analysis.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
	selectPath         = "/select"
	updatePath         = "/update"
	errBodyReadLimit   = 1024
)

// Errors returned by the index client.
var (
	ErrClientDisabled = fmt.Errorf("index client disabled")
	ErrServerError    = fmt.Errorf("index server error")
)

// Document is one indexed article.
type Document struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	Link             string    `json:"link,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	Published        time.Time `json:"published,omitempty"`
	SourceID         int64     `json:"source_id,omitempty"`
	SourceName       string    `json:"source_name,omitempty"`
	SourceBias       string    `json:"source_bias,omitempty"`
	GroupID          int64     `json:"group_id,omitempty"`
	PoliticalLeaning float32   `json:"political_leaning,omitempty"`
	Sensationalism   float32   `json:"sensationalism,omitempty"`
	FramingSummary   string    `json:"framing_summary,omitempty"`
}

// Config holds configuration for the index client.
type Config struct {
	// BaseURL is the Solr collection URL, e.g. "http://solr:8983/solr/articles".
	// An empty URL disables the client.
	BaseURL string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// Client talks to one Solr collection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
}

// New creates a new index client. The client is disabled when no base URL is
// configured; callers check Enabled before scheduling index work.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		enabled: cfg.BaseURL != "",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled returns whether the client is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Ping checks that Solr is reachable and the collection exists.
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return ErrClientDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/ping", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	return nil
}

// Index creates or refreshes documents. Existing documents with the same id
// are replaced, so re-indexing after a repeated analysis is idempotent.
func (c *Client) Index(ctx context.Context, docs ...Document) error {
	if !c.enabled {
		return ErrClientDisabled
	}

	if len(docs) == 0 {
		return nil
	}

	return c.sendUpdate(ctx, docs)
}

// Delete removes documents by article id.
func (c *Client) Delete(ctx context.Context, ids ...string) error {
	if !c.enabled {
		return ErrClientDisabled
	}

	if len(ids) == 0 {
		return nil
	}

	return c.sendUpdate(ctx, map[string]any{"delete": ids})
}

// SearchResult is a page of matching documents.
type SearchResult struct {
	NumFound int
	Docs     []Document
}

// Search runs an edismax query over title and summary, newest first.
func (c *Client) Search(ctx context.Context, query string, offset, rows int) (*SearchResult, error) {
	if !c.enabled {
		return nil, ErrClientDisabled
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("wt", "json")
	params.Set("defType", "edismax")
	params.Set("qf", "title^2 summary")
	params.Set("sort", "published desc")
	params.Set("rows", strconv.Itoa(rows))

	if offset > 0 {
		params.Set("start", strconv.Itoa(offset))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+selectPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var parsed struct {
		Response struct {
			NumFound int        `json:"numFound"` //nolint:tagliatelle // Solr API field name
			Docs     []Document `json:"docs"`
		} `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return &SearchResult{
		NumFound: parsed.Response.NumFound,
		Docs:     parsed.Response.Docs,
	}, nil
}

func (c *Client) sendUpdate(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+updatePath+"?commit=true", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create update request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	defer resp.Body.Close()

	// 409 means another replica already wrote the same document, which is
	// the desired end state for idempotent indexing.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}

	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, errBodyReadLimit))
	if readErr != nil {
		return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	return fmt.Errorf("%w: status %d, body: %s", ErrServerError, resp.StatusCode, string(body))
}
