package scene

import (
	"context"
	"fmt"

	"github.com/hyperjump/emaki/internal/vector"
	"go.uber.org/zap"
)

// Embedder is the part of an embedding provider the segmenter needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingSimilarity returns a SimilarityFunc that embeds both texts and compares them by cosine.
// Embeddings are not memoized here; a merged chain is embedded again from its merged text.
func EmbeddingSimilarity(e Embedder) SimilarityFunc {
	return func(ctx context.Context, a, b string) (float64, error) {
		ea, err := e.Embed(ctx, a)
		if err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
		eb, err := e.Embed(ctx, b)
		if err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
		return vector.Cosine(ea, eb)
	}
}

// BatchEmbedder is an Embedder that can also embed many texts in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Segmenter tokenizes story text and merges its sentences into scenes using an Embedder.
type Segmenter struct {
	sim    SimilarityFunc
	batch  BatchEmbedder
	logger *zap.Logger
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithLogger sets the logger for per-pair decisions.
func WithLogger(l *zap.Logger) SegmenterOption {
	return func(s *Segmenter) {
		s.logger = l
	}
}

// WithSimilarity replaces the embedding-based similarity. Sentences are no longer prefetched.
func WithSimilarity(sim SimilarityFunc) SegmenterOption {
	return func(s *Segmenter) {
		s.sim = sim
		s.batch = nil
	}
}

// NewSegmenter returns a Segmenter that scores sentence pairs with e.
func NewSegmenter(e Embedder, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{}
	if e != nil {
		s.sim = EmbeddingSimilarity(e)
		if b, ok := e.(BatchEmbedder); ok {
			s.batch = b
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split tokenizes text and segments the resulting sentences.
// Text without any sentence content returns ErrInvalidInput.
func (s *Segmenter) Split(ctx context.Context, text string, threshold float64) ([]string, error) {
	return s.SplitSentences(ctx, Tokenize(text), threshold)
}

// SplitSentences segments already tokenized sentences.
//
// With a BatchEmbedder, all sentences are embedded in one EmbedBatch call first so that
// providers with a cache answer the single-sentence lookups of the merge pass from it.
// A failed prefetch is only logged: the merge pass embeds every text itself and reports
// any real failure with its pair index.
func (s *Segmenter) SplitSentences(ctx context.Context, sentences []string, threshold float64) ([]string, error) {
	if len(sentences) == 0 {
		return nil, ErrInvalidInput
	}
	if s.sim == nil {
		return nil, fmt.Errorf("scene: no similarity function configured")
	}
	if s.batch != nil && len(sentences) > 1 {
		if _, err := s.batch.EmbedBatch(ctx, sentences); err != nil && s.logger != nil {
			s.logger.Debug("sentence prefetch failed", zap.Int("sentences", len(sentences)), zap.Error(err))
		}
	}
	sim := s.sim
	if s.logger != nil {
		sim = s.logged(sim, threshold)
	}
	scenes, err := Segment(ctx, sentences, threshold, sim)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("segmented text",
			zap.Int("sentences", len(sentences)),
			zap.Int("scenes", len(scenes)),
			zap.Float64("threshold", threshold))
	}
	return scenes, nil
}

func (s *Segmenter) logged(sim SimilarityFunc, threshold float64) SimilarityFunc {
	return func(ctx context.Context, a, b string) (float64, error) {
		score, err := sim(ctx, a, b)
		if err == nil {
			s.logger.Debug("pair similarity",
				zap.Float64("score", score),
				zap.Bool("merge", score >= threshold))
		}
		return score, err
	}
}
