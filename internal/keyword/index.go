// Package keyword provides full-text search over generated scenes.
package keyword

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SceneHit is a single scene search hit.
type SceneHit struct {
	StoryID string
	Index   int
	Score   float64
	// Fragments are the matching passages of the scene text with terms wrapped in <mark>.
	Fragments []string
}

// SearchOptions optional parameters for scene search. Nil means exact matching.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits, for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default is 1.
	Fuzziness int
	// Highlight fills SceneHit.Fragments.
	Highlight bool
}

// Index defines scene indexing operations.
type Index interface {
	IndexScenes(ctx context.Context, storyID string, scenes []string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*SceneHit, error)
	DeleteStory(ctx context.Context, storyID string) error
	DocCount() (uint64, error)
	Close() error
}

// sceneDocID returns the document id of the 1-based scene n of a story.
func sceneDocID(storyID string, n int) string {
	return storyID + "#" + strconv.Itoa(n)
}

// parseSceneDocID splits a document id produced by sceneDocID.
func parseSceneDocID(id string) (string, int, error) {
	i := strings.LastIndex(id, "#")
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed scene id %q", id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed scene id %q: %w", id, err)
	}
	return id[:i], n, nil
}
