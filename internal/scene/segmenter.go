package scene

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Separator joins the sentences of a merged scene.
const Separator = ". "

var (
	// ErrInvalidInput is returned when Segment is called without sentences.
	ErrInvalidInput = errors.New("scene: at least one sentence is required")
	// ErrSimilarity is returned when the similarity between two adjacent entries cannot be computed.
	ErrSimilarity = errors.New("scene: similarity computation failed")
)

// SimilarityFunc scores how close two texts are, normally the cosine similarity of their embeddings.
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

// SimilarityError reports the pair at which segmentation aborted.
// Index is the 0-based position of the left-hand sentence of the pair.
type SimilarityError struct {
	Index int
	Err   error
}

func (e *SimilarityError) Error() string {
	return fmt.Sprintf("%v: pair %d->%d: %v", ErrSimilarity, e.Index, e.Index+1, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SimilarityError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSimilarity) hold for every SimilarityError.
func (e *SimilarityError) Is(target error) bool {
	return target == ErrSimilarity
}

// Segment merges adjacent sentences into scenes in a single left-to-right pass.
//
// The pending chain starts as the first sentence. For every following sentence the similarity
// between the chain (as merged so far) and that sentence is computed: a score >= threshold appends
// the sentence to the chain with Separator, a lower score seals the chain as a finished scene and
// starts a new chain. The last chain is always emitted.
//
// Sealed boundaries are never revisited, so the result depends on direction: reversing the input
// does not generally reverse the output. Similarity calls are issued strictly in order because each
// one reads the chain produced by the previous decision.
//
// A failing or NaN similarity aborts the whole call; no partial result is returned.
func Segment(ctx context.Context, sentences []string, threshold float64, sim SimilarityFunc) ([]string, error) {
	if len(sentences) == 0 {
		return nil, ErrInvalidInput
	}
	if len(sentences) == 1 {
		return []string{sentences[0]}, nil
	}

	scenes := make([]string, 0, len(sentences))
	chain := sentences[0]
	for i, next := range sentences[1:] {
		score, err := sim(ctx, chain, next)
		if err != nil {
			return nil, &SimilarityError{Index: i, Err: err}
		}
		if math.IsNaN(score) {
			return nil, &SimilarityError{Index: i, Err: errors.New("similarity is NaN")}
		}
		if score >= threshold {
			chain = chain + Separator + next
			continue
		}
		scenes = append(scenes, chain)
		chain = next
	}
	return append(scenes, chain), nil
}
