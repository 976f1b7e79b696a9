// Package storage persists stories and their scenes, and writes storyboard manifests.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/emaki/internal/models"
)

// ErrNotFound is returned when a story or scene does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines story and scene persistence operations.
type Storage interface {
	// Story operations
	CreateStory(ctx context.Context, story *models.Story) error
	GetStory(ctx context.Context, id string) (*models.Story, error)
	UpdateStory(ctx context.Context, story *models.Story) error
	DeleteStory(ctx context.Context, id string) error
	ListStories(ctx context.Context, offset, limit int) ([]*models.Story, error)

	// Scene operations
	BatchCreateScenes(ctx context.Context, scenes []*models.Scene) error
	GetScenesByStoryID(ctx context.Context, storyID string) ([]*models.Scene, error)
	GetScene(ctx context.Context, storyID string, index int) (*models.Scene, error)
	DeleteScenesByStoryID(ctx context.Context, storyID string) error

	// Stats
	CountStories(ctx context.Context) (int64, error)
	CountScenes(ctx context.Context) (int64, error)

	Close() error
}
