// Package embedding provides sentence embedding providers: ONNX, HTTP and a deterministic mock.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/emaki/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New creates the embedder selected by cfg.Provider.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case config.EmbeddingProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	case config.EmbeddingProviderHTTP:
		return NewHTTPEmbedder(cfg, logger)
	case config.EmbeddingProviderONNX, "":
		var tok Tokenizer = &SimpleTokenizer{}
		if cfg.TokenizerPath != "" {
			hf, err := NewHFTokenizer(cfg.TokenizerPath)
			if err != nil {
				return nil, err
			}
			tok = hf
		}
		emb, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Tokenizer:  tok,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
			CacheSize:  cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// embedEach calls embed for every text in order, stopping at the first error.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
