//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/emaki/internal/vector"
	ort "github.com/yalue/onnxruntime_go"
)

// Model input and output names of sentence-transformers exports with a pooling head.
var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"output"}
)

// ONNXEmbedder runs a pooled sentence-transformers model through ONNX Runtime.
// Requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	tensors *onnxTensors
	opts    ONNXOptions
	cache   *Cache
}

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	Tokenizer  Tokenizer
	Dimensions int
	MaxTokens  int
	CacheSize  int
}

// onnxTensors are bound to the session once; each Embed overwrites the inputs in place.
type onnxTensors struct {
	inputs [3]*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newONNXTensors(opts ONNXOptions) (*onnxTensors, error) {
	t := &onnxTensors{}
	inputShape := ort.NewShape(1, int64(opts.MaxTokens))
	ids, mask, types := newTokenBuffers(opts.MaxTokens)
	for i, data := range [][]int64{ids, mask, types} {
		tensor, err := ort.NewTensor(inputShape, data)
		if err != nil {
			t.destroy()
			return nil, fmt.Errorf("failed to create %s tensor: %w", onnxInputNames[i], err)
		}
		t.inputs[i] = tensor
	}
	output, err := ort.NewTensor(ort.NewShape(1, int64(opts.Dimensions)), make([]float32, opts.Dimensions))
	if err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	t.output = output
	return t, nil
}

func (t *onnxTensors) load(ids, mask, types []int64) {
	copy(t.inputs[0].GetData(), ids)
	copy(t.inputs[1].GetData(), mask)
	copy(t.inputs[2].GetData(), types)
}

func (t *onnxTensors) destroy() {
	for i, tensor := range t.inputs {
		if tensor != nil {
			_ = tensor.Destroy()
			t.inputs[i] = nil
		}
	}
	if t.output != nil {
		_ = t.output.Destroy()
		t.output = nil
	}
}

// NewONNXEmbedder loads the model at opts.ModelPath, initializing the ONNX environment on first use.
// A nil tokenizer falls back to SimpleTokenizer.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if opts.Dimensions <= 0 || opts.MaxTokens <= 0 {
		return nil, fmt.Errorf("invalid ONNX embedder size: dimensions=%d max_tokens=%d", opts.Dimensions, opts.MaxTokens)
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = &SimpleTokenizer{}
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tensors, err := newONNXTensors(opts)
	if err != nil {
		return nil, err
	}
	inputs := make([]ort.ArbitraryTensor, 0, len(tensors.inputs))
	for _, tensor := range tensors.inputs {
		inputs = append(inputs, tensor)
	}
	session, err := ort.NewAdvancedSession(opts.ModelPath, onnxInputNames, onnxOutputNames,
		inputs, []ort.ArbitraryTensor{tensors.output}, nil)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", opts.ModelPath, err)
	}

	return &ONNXEmbedder{
		session: session,
		tensors: tensors,
		opts:    opts,
		cache:   NewCache(opts.CacheSize),
	}, nil
}

// Embed returns the unit-length embedding for text. Repeated sentences are served from the cache.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("ONNX embedder is closed")
	}

	e.tensors.load(e.opts.Tokenizer.Tokenize(text, e.opts.MaxTokens))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.opts.Dimensions)
	copy(embedding, e.tensors.output.GetData())
	vector.Normalize(embedding)
	e.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close releases the session and its tensors. Embed fails afterwards.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.tensors.destroy()
	return err
}
