package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/hyperjump/emaki/internal/vector"
)

// mockBaseline keeps every mock vector non-zero, so text without words still has a defined cosine.
const mockBaseline = 0.05

// MockEmbedder hashes the lowercased words of a sentence into a fixed number of buckets.
// Sentences that share words land close together, which is enough to drive segmentation
// locally without a model.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a bag-of-words embedder with the given number of buckets (384 when unset).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length bucket vector for text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = mockBaseline
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := uint(HashString(w))
		bucket := h % uint(e.dimensions)
		if (h/uint(e.dimensions))%2 == 0 {
			emb[bucket]++
		} else {
			emb[bucket]--
		}
	}
	vector.Normalize(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the number of buckets.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
