package embedding

import (
	"fmt"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
// All three slices have length maxTokens; unused positions are zero.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsTokenID = 101
	sepTokenID = 102
)

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs, attentionMask, tokenTypeIDs = newTokenBuffers(maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// HFTokenizer tokenizes with a HuggingFace tokenizer.json, matching the vocabulary of the ONNX model.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens and truncates or pads to maxTokens.
// On encoding failure it falls back to an empty [CLS] [SEP] sequence.
func (t *HFTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs, attentionMask, tokenTypeIDs = newTokenBuffers(maxTokens)

	input := tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(text))
	encodings, err := t.tk.EncodeBatch([]tokenizer.EncodeInput{input}, true)
	if err != nil || len(encodings) == 0 {
		return (&SimpleTokenizer{}).Tokenize("", maxTokens)
	}
	ids := encodings[0].GetIds()
	mask := encodings[0].GetAttentionMask()
	typeIDs := encodings[0].GetTypeIds()
	n := len(ids)
	if n > maxTokens {
		n = maxTokens
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		if i < len(mask) {
			attentionMask[i] = int64(mask[i])
		}
		if i < len(typeIDs) {
			tokenTypeIDs[i] = int64(typeIDs[i])
		}
	}
	// Truncation keeps the sequence terminated.
	if len(ids) > maxTokens {
		inputIDs[maxTokens-1] = sepTokenID
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

func newTokenBuffers(n int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	return make([]int64, n), make([]int64, n), make([]int64, n)
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
