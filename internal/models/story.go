// Package models defines core data structures for stories, scenes and API payloads.
package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/hyperjump/emaki/internal/fileid"
)

// Story statuses.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// MaxStoryIDLength bounds the length of a story id.
const MaxStoryIDLength = 128

// storyIDPattern admits letters, digits, '_' and '-', optionally behind the file-story prefix.
// Ids double as directory names, so '.', separators and anything else are refused.
var storyIDPattern = regexp.MustCompile(`^(` + regexp.QuoteMeta(fileid.Prefix) + `)?[A-Za-z0-9_-]+$`)

// ValidateStoryID reports whether id can name a story and its output directory.
func ValidateStoryID(id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	if len(id) > MaxStoryIDLength {
		return &ValidationError{Field: "id", Message: "is too long"}
	}
	if !storyIDPattern.MatchString(id) {
		return &ValidationError{Field: "id", Message: "may only contain letters, digits, '_' and '-'"}
	}
	return nil
}

// DefaultStyle is the image style used when a story does not name one.
const DefaultStyle = "realistic"

// Story is a piece of text that has been, or is being, turned into a storyboard.
type Story struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content,omitempty" db:"content"`
	Style      string    `json:"style" db:"style"`
	Threshold  float64   `json:"threshold" db:"threshold"`
	Status     string    `json:"status" db:"status"`
	Error      string    `json:"error,omitempty" db:"error"`
	SceneCount int       `json:"scene_count" db:"scene_count"`
	ElapsedMs  int64     `json:"elapsed_ms" db:"elapsed_ms"`
	OutputDir  string    `json:"output_dir,omitempty" db:"output_dir"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Scene is one merged run of sentences and the image generated for it.
// Index is 1-based and matches the image file name image-<Index>.png.
type Scene struct {
	ID        string    `json:"id" db:"id"`
	StoryID   string    `json:"story_id" db:"story_id"`
	Index     int       `json:"index" db:"scene_index"`
	Text      string    `json:"text" db:"text"`
	ImagePath string    `json:"image_path,omitempty" db:"image_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StoryInput is the input for creating a storyboard.
type StoryInput struct {
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content"`
	Style      string   `json:"style,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	SkipImages bool     `json:"skip_images,omitempty"`
}

// Validate checks required fields and the id when one is given, and fills the default style.
func (in *StoryInput) Validate() error {
	if in.ID != "" {
		if err := ValidateStoryID(in.ID); err != nil {
			return err
		}
	}
	if strings.TrimSpace(in.Content) == "" {
		return &ValidationError{Field: "content", Message: "cannot be empty"}
	}
	if strings.TrimSpace(in.Style) == "" {
		in.Style = DefaultStyle
	}
	return nil
}

// StoryDetail is a story together with its scenes in order.
type StoryDetail struct {
	*Story
	Scenes []*Scene `json:"scenes"`
}
