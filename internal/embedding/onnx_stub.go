//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime, or use the http or mock provider")

// ONNXEmbedder is unavailable without CGO.
type ONNXEmbedder struct{}

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	Tokenizer  Tokenizer
	Dimensions int
	MaxTokens  int
	CacheSize  int
}

// NewONNXEmbedder always fails without CGO.
func NewONNXEmbedder(ONNXOptions) (*ONNXEmbedder, error) {
	return nil, errONNXUnavailable
}

// Embed always fails without CGO.
func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

// EmbedBatch always fails without CGO.
func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

// Dimensions returns 0 without CGO.
func (e *ONNXEmbedder) Dimensions() int { return 0 }

// Close is a no-op without CGO.
func (e *ONNXEmbedder) Close() error { return nil }
