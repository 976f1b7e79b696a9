package storyboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/internal/imagegen"
	"github.com/hyperjump/emaki/internal/keyword"
	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/internal/scene"
	"github.com/hyperjump/emaki/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const knightStory = "The knight rode north. He reached the castle. Far away a dragon slept. The dragon woke."

// topicEmbedder puts dragon sentences on one axis and everything else on the other.
type topicEmbedder struct {
	fail bool
}

func (e *topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	if strings.Contains(strings.ToLower(text), "dragon") {
		return []float32{0, 1}, nil
	}
	return []float32{1, 0}, nil
}

// countingGenerator wraps a generator, counts prompts and can fail on the n-th call.
type countingGenerator struct {
	inner   imagegen.Generator
	calls   int32
	failOn  int32
	prompts []string
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	n := atomic.AddInt32(&g.calls, 1)
	g.prompts = append(g.prompts, prompt)
	if g.failOn > 0 && n == g.failOn {
		return nil, imagegen.ErrGeneration
	}
	return g.inner.Generate(ctx, prompt)
}

type fixture struct {
	pipeline *Pipeline
	store    *storage.SQLiteStorage
	index    *keyword.SceneIndex
	gen      *countingGenerator
	cfg      *config.Config
}

func newFixture(t *testing.T, embedder scene.Embedder) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Embedding: config.EmbeddingConfig{Provider: config.EmbeddingProviderMock}}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "stories.db")
	cfg.Storage.OutputDir = filepath.Join(dir, "stories")
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx, err := keyword.NewSceneIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	gen := &countingGenerator{inner: imagegen.NewPlaceholderGenerator(4, 4)}
	return &fixture{
		pipeline: NewPipeline(store, embedder, gen, idx, cfg),
		store:    store,
		index:    idx,
		gen:      gen,
		cfg:      cfg,
	}
}

func TestPipeline_Segment(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	resp, err := f.pipeline.Segment(context.Background(), knightStory, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Sentences)
	assert.Equal(t, config.DefaultThreshold, resp.Threshold)
	assert.Equal(t, []string{
		"The knight rode north.  He reached the castle",
		" Far away a dragon slept.  The dragon woke",
	}, resp.Scenes)
}

func TestPipeline_SegmentZeroThreshold(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	zero := 0.0
	resp, err := f.pipeline.Segment(context.Background(), knightStory, &zero)
	require.NoError(t, err)
	assert.Len(t, resp.Scenes, 1, "cosine 0 >= threshold 0 merges everything")
}

func TestPipeline_Run(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	ctx := context.Background()

	story, err := f.pipeline.Run(ctx, &models.StoryInput{Title: "Knight", Content: knightStory, Style: "cartoon"})
	require.NoError(t, err)
	require.NotEmpty(t, story.ID)
	assert.Equal(t, models.StatusReady, story.Status)
	assert.Equal(t, 2, story.SceneCount)
	assert.Equal(t, int32(2), f.gen.calls)
	assert.Equal(t, "Make a cartoon image of The knight rode north.  He reached the castle", f.gen.prompts[0])

	for _, name := range []string{"image-1.png", "image-2.png", storage.ManifestFile} {
		_, err := os.Stat(filepath.Join(story.OutputDir, name))
		assert.NoError(t, err, name)
	}
	m, err := storage.ReadManifest(filepath.Join(story.OutputDir, storage.ManifestFile))
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, "image-2.png", m.Entries[1].Image)
	assert.Equal(t, " Far away a dragon slept.  The dragon woke", m.Entries[1].Caption)

	detail, err := f.pipeline.Detail(ctx, story.ID)
	require.NoError(t, err)
	require.Len(t, detail.Scenes, 2)
	assert.Equal(t, filepath.Join(story.OutputDir, "image-1.png"), detail.Scenes[0].ImagePath)

	results, err := f.pipeline.SearchScenes(ctx, "castle", 10, false)
	require.NoError(t, err)
	require.Equal(t, 1, results.Total)
	assert.Equal(t, story.ID, results.Results[0].StoryID)
	assert.Equal(t, 1, results.Results[0].Index)
}

func TestPipeline_RunUsesConfiguredStyle(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	_, err := f.pipeline.Run(context.Background(), &models.StoryInput{Content: "One sentence only"})
	require.NoError(t, err)
	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, "Make a realistic image of One sentence only", f.gen.prompts[0])
}

func TestPipeline_RunSkipImages(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	story, err := f.pipeline.Run(context.Background(), &models.StoryInput{Content: knightStory, SkipImages: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, story.Status)
	assert.Equal(t, int32(0), f.gen.calls)
	_, err = os.Stat(filepath.Join(story.OutputDir, storage.ManifestFile))
	assert.NoError(t, err)
}

func TestPipeline_RunEmptyContent(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	_, err := f.pipeline.Run(context.Background(), &models.StoryInput{Content: "  "})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.pipeline.Run(context.Background(), &models.StoryInput{Content: "...!?"})
	require.ErrorIs(t, err, scene.ErrInvalidInput)
}

func TestPipeline_RunSimilarityFailureMarksFailed(t *testing.T) {
	f := newFixture(t, &topicEmbedder{fail: true})
	ctx := context.Background()

	story, err := f.pipeline.Run(ctx, &models.StoryInput{ID: "s1", Content: knightStory})
	require.ErrorIs(t, err, scene.ErrSimilarity)
	assert.Equal(t, int32(0), f.gen.calls)

	stored, err := f.store.GetStory(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "embedding service unavailable")
	n, _ := f.store.CountScenes(ctx)
	assert.Zero(t, n)
}

func TestPipeline_RunImageFailureMarksFailed(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	f.gen.failOn = 2
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, &models.StoryInput{ID: "s1", Content: knightStory})
	require.ErrorIs(t, err, imagegen.ErrGeneration)

	stored, err := f.store.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	n, _ := f.index.DocCount()
	assert.Zero(t, n)
}

func TestPipeline_RunFile(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "knight.txt")
	require.NoError(t, os.WriteFile(path, []byte(knightStory), 0600))

	first, err := f.pipeline.RunFile(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "knight.txt", first.Title)
	assert.True(t, strings.HasPrefix(first.ID, "file:"))
	assert.Equal(t, int32(2), f.gen.calls)

	// unchanged file is not regenerated
	again, err := f.pipeline.RunFile(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int32(2), f.gen.calls)

	// changed file replaces the story
	require.NoError(t, os.WriteFile(path, []byte("A dragon. Another dragon. A knight."), 0600))
	replaced, err := f.pipeline.RunFile(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replaced.ID)
	n, _ := f.store.CountStories(ctx)
	assert.Equal(t, int64(1), n)
	scenes, _ := f.store.GetScenesByStoryID(ctx, first.ID)
	assert.Len(t, scenes, 2)

	require.NoError(t, f.pipeline.RemoveFile(ctx, path))
	n, _ = f.store.CountStories(ctx)
	assert.Zero(t, n)
}

func TestPipeline_RunDirectory(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("One. Two."), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("Three."), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte("x"), 0600))

	n, err := f.pipeline.RunDirectory(context.Background(), dir, &models.StoryInput{SkipImages: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPipeline_DeleteStory(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	ctx := context.Background()
	story, err := f.pipeline.Run(ctx, &models.StoryInput{Content: knightStory})
	require.NoError(t, err)

	require.NoError(t, f.pipeline.DeleteStory(ctx, story.ID))
	_, err = f.store.GetStory(ctx, story.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = os.Stat(story.OutputDir)
	assert.True(t, os.IsNotExist(err))
	n, _ := f.index.DocCount()
	assert.Zero(t, n)

	require.ErrorIs(t, f.pipeline.DeleteStory(ctx, story.ID), storage.ErrNotFound)
}

func TestPipeline_SearchScenesValidation(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	_, err := f.pipeline.SearchScenes(context.Background(), " ", 10, false)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestStoryDirName(t *testing.T) {
	assert.Equal(t, "file.abc", storyDirName("file:abc"))
	assert.Equal(t, "file-abc", storyDirName("file-abc"))
	assert.Equal(t, "tale_1", storyDirName("tale_1"))
}

func TestStoryDir(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	want := filepath.Join(f.cfg.Storage.OutputDir, "file.abc")
	got, err := StoryDir(f.cfg.Storage.OutputDir, "file:abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	got, err = f.pipeline.StoryDir("file:abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoryDir_rejectsEscapingIDs(t *testing.T) {
	out := t.TempDir()
	for _, id := range []string{"", ".", "..", "../x", "a/b", `a\b`, "a:b", "file:../x"} {
		_, err := StoryDir(out, id)
		var ve *models.ValidationError
		assert.ErrorAs(t, err, &ve, "id %q", id)
	}
}

func TestPipeline_RunRejectsTraversalIDs(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	ctx := context.Background()
	keep := filepath.Join(filepath.Dir(f.cfg.Storage.OutputDir), "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("outside the output dir"), 0600))
	kept, err := f.pipeline.Run(ctx, &models.StoryInput{ID: "kept", Content: knightStory, SkipImages: true})
	require.NoError(t, err)

	for _, id := range []string{"..", "."} {
		_, err := f.pipeline.Run(ctx, &models.StoryInput{ID: id, Content: "A dragon. A dragon.", SkipImages: true})
		var ve *models.ValidationError
		require.ErrorAs(t, err, &ve, "id %q", id)
		assert.Equal(t, "id", ve.Field)
	}

	_, err = os.Stat(keep)
	assert.NoError(t, err, "sibling of the output dir must survive")
	_, err = os.Stat(kept.OutputDir)
	assert.NoError(t, err, "other storyboards must survive")
	_, err = f.store.GetStory(ctx, "..")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPipeline_DistinctIDsKeepDistinctDirs(t *testing.T) {
	f := newFixture(t, &topicEmbedder{})
	ctx := context.Background()

	fileStory, err := f.pipeline.Run(ctx, &models.StoryInput{ID: "file:abc", Content: knightStory})
	require.NoError(t, err)
	plain, err := f.pipeline.Run(ctx, &models.StoryInput{ID: "file-abc", Content: knightStory})
	require.NoError(t, err)

	assert.NotEqual(t, fileStory.OutputDir, plain.OutputDir)
	for _, dir := range []string{fileStory.OutputDir, plain.OutputDir} {
		_, err := os.Stat(filepath.Join(dir, storage.ManifestFile))
		assert.NoError(t, err, "manifest in %s", dir)
		_, err = os.Stat(filepath.Join(dir, storage.ImageName(1)))
		assert.NoError(t, err, "first image in %s", dir)
	}
}
