// Package qwen implements the embedder.Provider interface on top of the
// Alibaba Cloud DashScope text embedding API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL    = "https://dashscope.aliyuncs.com/api/v1"
	defaultModel      = "text-embedding-v4"
	defaultDimensions = 1536

	embeddingPath = "/services/embeddings/text-embedding/text-embedding"
)

// Client is a DashScope embedding provider.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	dimensions int
}

// Config is the configuration for the DashScope embedding provider.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the embedding model name. Defaults to text-embedding-v4.
	Model string

	// BaseURL overrides the API base URL.
	BaseURL string

	// Dimensions is the vector dimension. Defaults to 1536.
	Dimensions int

	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
}

// NewClient creates a new DashScope embedding client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("qwen embedder: api key is required")
	}

	c := &Client{
		httpClient: cfg.HTTPClient,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		dimensions: cfg.Dimensions,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.dimensions == 0 {
		c.dimensions = defaultDimensions
	}
	return c, nil
}

type embeddingResponse struct {
	Output struct {
		Embeddings []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
}

// embed sends one embedding request for the given texts and returns the
// vectors in input order.
func (c *Client) embed(ctx context.Context, texts []string) ([][]float64, error) {
	payload := map[string]any{
		"model":     c.model,
		"input":     map[string]any{"texts": texts},
		"text_type": "document",
		"parameters": map[string]any{
			"dimension": c.dimensions,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+embeddingPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen embedder: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qwen embedder: status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("qwen embedder: decode response: %w", err)
	}
	if len(parsed.Output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("qwen embedder: got %d results, expected %d",
			len(parsed.Output.Embeddings), len(texts))
	}

	out := make([][]float64, len(texts))
	for i, e := range parsed.Output.Embeddings {
		out[i] = e.Embedding
	}
	return out, nil
}

// Embed converts a single text into an embedding vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts into embedding vectors in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return c.embed(ctx, texts)
}

// Dimensions returns the configured vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the client keeps no persistent connections.
func (c *Client) Close() error {
	return nil
}
