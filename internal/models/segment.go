package models

import (
	"fmt"
	"strings"
)

// SegmentRequest asks for the scenes of a piece of text without generating images.
type SegmentRequest struct {
	Text      string   `json:"text"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate ensures the request carries text.
func (r *SegmentRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return &ValidationError{Field: "text", Message: "cannot be empty"}
	}
	return nil
}

// SegmentResponse is the result of a segmentation.
type SegmentResponse struct {
	Sentences int      `json:"sentences"`
	Scenes    []string `json:"scenes"`
	Threshold float64  `json:"threshold"`
	TookMs    int64    `json:"took_ms"`
}

// SceneSearchResult is a scene matched by keyword search.
type SceneSearchResult struct {
	StoryID   string  `json:"story_id"`
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	Highlight string  `json:"highlight,omitempty"`
	Score     float64 `json:"score"`
}

// SceneSearchResponse is the response for a scene search.
type SceneSearchResponse struct {
	Query   string               `json:"query"`
	Results []*SceneSearchResult `json:"results"`
	Total   int                  `json:"total"`
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}
