package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/pkg/utils"
	"go.uber.org/zap"
)

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
// Transient failures are retried by the client; a request that still fails is returned as an error.
type HTTPEmbedder struct {
	client     *retryablehttp.Client
	endpoint   string
	model      string
	apiKey     string
	dimensions int
	cache      *Cache
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewHTTPEmbedder creates an embedder for cfg.Endpoint. The API key is read from cfg.APIKeyEnv.
func NewHTTPEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required for the http provider")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required for the http provider")
	}
	return &HTTPEmbedder{
		client:     utils.NewRetryClient(cfg.Timeout(), cfg.MaxRetries, logger),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey(),
		dimensions: cfg.Dimensions,
		cache:      NewCache(cfg.CacheSize),
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	out, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, out[0])
	return out[0], nil
}

// EmbedBatch embeds all uncached texts in a single request.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			out[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := e.request(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, i := range missingIdx {
		out[i] = fetched[j]
		e.cache.Set(missing[j], fetched[j])
	}
	return out, nil
}

func (e *HTTPEmbedder) request(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: inputs})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding provider returned %d embeddings for %d inputs", len(decoded.Data), len(inputs))
	}
	out := make([][]float32, len(inputs))
	for i, d := range decoded.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embedding provider returned an empty embedding")
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(d.Embedding), e.dimensions)
		}
		out[idx] = d.Embedding
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embedding provider returned no embedding for input %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.HTTPClient.CloseIdleConnections()
	return nil
}
