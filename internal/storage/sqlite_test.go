package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/emaki/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_StoryCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	story := &models.Story{
		ID:        "s1",
		Title:     "The Knight",
		Content:   "The knight rode north. He reached the castle.",
		Style:     "cartoon",
		Threshold: 0.7,
		Status:    models.StatusProcessing,
	}
	if err := store.CreateStory(ctx, story); err != nil {
		t.Fatal(err)
	}
	if story.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetStory(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "The Knight" || got.Style != "cartoon" || got.Threshold != 0.7 || got.Status != models.StatusProcessing {
		t.Errorf("got %+v", got)
	}

	story.Status = models.StatusReady
	story.SceneCount = 2
	story.ElapsedMs = 1500
	story.OutputDir = "/tmp/out/s1"
	if err := store.UpdateStory(ctx, story); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetStory(ctx, "s1")
	if got.Status != models.StatusReady || got.SceneCount != 2 || got.ElapsedMs != 1500 || got.OutputDir != "/tmp/out/s1" {
		t.Errorf("after update: %+v", got)
	}

	list, err := store.ListStories(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 story, got %d", len(list))
	}

	if err := store.DeleteStory(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetStory(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_UpdateMissingStory(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateStory(context.Background(), &models.Story{ID: "nope", Style: "x", Status: models.StatusReady})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Scenes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateStory(ctx, &models.Story{ID: "s1", Content: "c", Style: "realistic", Status: models.StatusReady}); err != nil {
		t.Fatal(err)
	}
	scenes := []*models.Scene{
		{ID: "s1#2", StoryID: "s1", Index: 2, Text: "C. D", ImagePath: "/out/image-2.png"},
		{ID: "s1#1", StoryID: "s1", Index: 1, Text: "A. B", ImagePath: "/out/image-1.png"},
	}
	if err := store.BatchCreateScenes(ctx, scenes); err != nil {
		t.Fatal(err)
	}

	list, err := store.GetScenesByStoryID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Index != 1 || list[1].Index != 2 {
		t.Fatalf("scenes should be ordered by index, got %+v", list)
	}

	got, err := store.GetScene(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "C. D" || got.ImagePath != "/out/image-2.png" {
		t.Errorf("got %+v", got)
	}
	if _, err := store.GetScene(ctx, "s1", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteScenesByStoryID(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	list, _ = store.GetScenesByStoryID(ctx, "s1")
	if len(list) != 0 {
		t.Errorf("expected 0 scenes after delete, got %d", len(list))
	}
}

func TestSQLiteStorage_DeleteStoryRemovesScenes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.CreateStory(ctx, &models.Story{ID: "s1", Content: "c", Style: "realistic", Status: models.StatusReady})
	_ = store.BatchCreateScenes(ctx, []*models.Scene{{ID: "s1#1", StoryID: "s1", Index: 1, Text: "A"}})

	if err := store.DeleteStory(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	n, err := store.CountScenes(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountScenes after story delete: %v, %d", err, n)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.CountStories(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountStories: %v, %d", err, n)
	}
	_ = store.CreateStory(ctx, &models.Story{ID: "x", Content: "c", Style: "realistic", Status: models.StatusReady})
	_ = store.BatchCreateScenes(ctx, []*models.Scene{
		{ID: "x#1", StoryID: "x", Index: 1, Text: "a"},
		{ID: "x#2", StoryID: "x", Index: 2, Text: "b"},
	})
	n, _ = store.CountStories(ctx)
	if n != 1 {
		t.Errorf("expected 1 story, got %d", n)
	}
	n, _ = store.CountScenes(ctx)
	if n != 2 {
		t.Errorf("expected 2 scenes, got %d", n)
	}
}
