// Package storyboard turns story text into scenes, one generated image per scene, and a manifest.
package storyboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/internal/extract"
	"github.com/hyperjump/emaki/internal/fileid"
	"github.com/hyperjump/emaki/internal/imagegen"
	"github.com/hyperjump/emaki/internal/keyword"
	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/internal/scene"
	"github.com/hyperjump/emaki/internal/storage"
	"go.uber.org/zap"
)

// Pipeline runs stories through segmentation, image generation, persistence and indexing.
type Pipeline struct {
	storage    storage.Storage
	segmenter  *scene.Segmenter
	generator  imagegen.Generator
	sceneIndex keyword.Index
	extractor  *extract.Extractor
	threshold  float64
	style      string
	outputDir  string
	extensions []string
	logger     *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline. sceneIndex may be nil to skip keyword indexing.
func NewPipeline(
	store storage.Storage,
	embedder scene.Embedder,
	generator imagegen.Generator,
	sceneIndex keyword.Index,
	cfg *config.Config,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		storage:    store,
		generator:  generator,
		sceneIndex: sceneIndex,
		extractor:  extract.NewExtractor(),
		threshold:  cfg.Segmentation.ThresholdOrDefault(),
		style:      cfg.Image.Style,
		outputDir:  cfg.Storage.OutputDir,
		extensions: cfg.Watch.Extensions,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.style == "" {
		p.style = models.DefaultStyle
	}
	p.segmenter = scene.NewSegmenter(embedder, scene.WithLogger(p.logger))
	return p
}

// Segment splits text into scenes without generating images. A nil threshold selects the
// configured default; zero is a valid threshold.
func (p *Pipeline) Segment(ctx context.Context, text string, threshold *float64) (*models.SegmentResponse, error) {
	th := p.thresholdOr(threshold)
	start := time.Now()
	sentences := scene.Tokenize(text)
	scenes, err := p.segmenter.SplitSentences(ctx, sentences, th)
	if err != nil {
		return nil, err
	}
	return &models.SegmentResponse{
		Sentences: len(sentences),
		Scenes:    scenes,
		Threshold: th,
		TookMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (p *Pipeline) thresholdOr(threshold *float64) float64 {
	if threshold != nil {
		return *threshold
	}
	return p.threshold
}

// StoryDir returns the output directory of a story.
func (p *Pipeline) StoryDir(id string) (string, error) {
	return StoryDir(p.outputDir, id)
}

// StoryDir returns the directory directly below outputDir that holds the storyboard of story id.
// Ids that models.ValidateStoryID refuses, or that would resolve outside outputDir, are an error.
func StoryDir(outputDir, id string) (string, error) {
	if err := models.ValidateStoryID(id); err != nil {
		return "", err
	}
	dir := filepath.Join(outputDir, storyDirName(id))
	if rel, err := filepath.Rel(outputDir, dir); err != nil || rel != storyDirName(id) {
		return "", &models.ValidationError{Field: "id", Message: "does not name a directory below the output directory"}
	}
	return dir, nil
}

// storyDirName maps a valid story id to its directory name. The file-story colon becomes a
// '.', which valid ids cannot contain, so distinct ids never share a directory.
func storyDirName(id string) string {
	return strings.Replace(id, ":", ".", 1)
}

// lock serializes runs of the same story id.
func (p *Pipeline) lock(id string) func() {
	p.locksMu.Lock()
	mu, ok := p.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[id] = mu
	}
	p.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Run builds the storyboard for input. An existing story with the same id is replaced.
// On failure the story is kept with status failed and the error is returned.
func (p *Pipeline) Run(ctx context.Context, input *models.StoryInput) (*models.Story, error) {
	if strings.TrimSpace(input.Style) == "" {
		input.Style = p.style
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	defer p.lock(input.ID)()

	dir, err := p.StoryDir(input.ID)
	if err != nil {
		return nil, err
	}
	if err := p.removeStory(ctx, input.ID); err != nil {
		return nil, err
	}

	story := &models.Story{
		ID:        input.ID,
		Title:     input.Title,
		Content:   input.Content,
		Style:     input.Style,
		Threshold: p.thresholdOr(input.Threshold),
		Status:    models.StatusProcessing,
		OutputDir: dir,
	}
	if err := p.storage.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to store story: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("storyboard started", zap.String("id", story.ID), zap.String("style", story.Style), zap.Float64("threshold", story.Threshold))
	}

	start := time.Now()
	if err := p.build(ctx, story, input.SkipImages); err != nil {
		p.markFailed(ctx, story, err)
		return story, err
	}

	story.Status = models.StatusReady
	story.ElapsedMs = time.Since(start).Milliseconds()
	if err := p.storage.UpdateStory(ctx, story); err != nil {
		return story, fmt.Errorf("failed to update story: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("storyboard ready", zap.String("id", story.ID), zap.Int("scenes", story.SceneCount), zap.Int64("elapsed_ms", story.ElapsedMs))
	}
	return story, nil
}

func (p *Pipeline) build(ctx context.Context, story *models.Story, skipImages bool) error {
	scenes, err := p.segmenter.Split(ctx, story.Content, story.Threshold)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(story.OutputDir); err != nil {
		return fmt.Errorf("failed to clear output directory: %w", err)
	}
	if err := os.MkdirAll(story.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	records := make([]*models.Scene, len(scenes))
	for i, text := range scenes {
		n := i + 1
		records[i] = &models.Scene{
			ID:      fmt.Sprintf("%s#%d", story.ID, n),
			StoryID: story.ID,
			Index:   n,
			Text:    text,
		}
		if skipImages {
			continue
		}
		img, err := p.generator.Generate(ctx, imagegen.Prompt(story.Style, text))
		if err != nil {
			return fmt.Errorf("scene %d: %w", n, err)
		}
		path := filepath.Join(story.OutputDir, storage.ImageName(n))
		if err := os.WriteFile(path, img, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		records[i].ImagePath = path
		if p.logger != nil {
			p.logger.Debug("scene image generated", zap.String("id", story.ID), zap.Int("scene", n), zap.String("path", path))
		}
	}

	if err := p.storage.BatchCreateScenes(ctx, records); err != nil {
		return fmt.Errorf("failed to store scenes: %w", err)
	}
	if err := storage.WriteManifest(filepath.Join(story.OutputDir, storage.ManifestFile), storage.NewManifest(scenes)); err != nil {
		return err
	}
	if p.sceneIndex != nil {
		if err := p.sceneIndex.IndexScenes(ctx, story.ID, scenes); err != nil {
			return fmt.Errorf("failed to index scenes: %w", err)
		}
	}
	story.SceneCount = len(scenes)
	return nil
}

func (p *Pipeline) markFailed(ctx context.Context, story *models.Story, cause error) {
	story.Status = models.StatusFailed
	story.Error = cause.Error()
	// record the failure even when the run was cancelled
	if err := p.storage.UpdateStory(context.WithoutCancel(ctx), story); err != nil && p.logger != nil {
		p.logger.Warn("failed to record story failure", zap.String("id", story.ID), zap.Error(err))
	}
	if p.logger != nil {
		p.logger.Debug("storyboard failed", zap.String("id", story.ID), zap.Error(cause))
	}
}

// RunFile extracts the story in path and runs it. The story id is derived from the path,
// so re-running a file replaces its earlier storyboard. A file whose ready story already has
// the same content is skipped and its stored story returned.
func (p *Pipeline) RunFile(ctx context.Context, path string, input *models.StoryInput) (*models.Story, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	text, err := p.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	in := models.StoryInput{}
	if input != nil {
		in = *input
	}
	in.ID = fileid.StoryID(absPath)
	in.Content = text
	if in.Title == "" {
		in.Title = filepath.Base(absPath)
	}

	if existing, err := p.storage.GetStory(ctx, in.ID); err == nil &&
		existing.Status == models.StatusReady && existing.Content == text &&
		(in.Style == "" || in.Style == existing.Style) &&
		(in.Threshold == nil || *in.Threshold == existing.Threshold) {
		if p.logger != nil {
			p.logger.Debug("storyboard unchanged, skipping", zap.String("path", absPath))
		}
		return existing, nil
	}
	return p.Run(ctx, &in)
}

// RunDirectory runs every story file below dir whose extension is configured.
// It returns the number of stories run and the first error.
func (p *Pipeline) RunDirectory(ctx context.Context, dir string, input *models.StoryInput) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extensionAllowed(path, p.extensions) {
			return nil
		}
		if _, err := p.RunFile(ctx, path, input); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
			return true
		}
	}
	return false
}

// RemoveFile deletes the story that was built from path, if any.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return p.DeleteStory(ctx, fileid.StoryID(absPath))
}

// DeleteStory removes a story from the scene index, storage and output directory.
// It returns storage.ErrNotFound when the story does not exist.
func (p *Pipeline) DeleteStory(ctx context.Context, id string) error {
	defer p.lock(id)()
	if _, err := p.storage.GetStory(ctx, id); err != nil {
		return err
	}
	return p.removeStory(ctx, id)
}

// removeStory deletes whatever exists of story id; a missing story is not an error.
func (p *Pipeline) removeStory(ctx context.Context, id string) error {
	dir, err := p.StoryDir(id)
	if err != nil {
		return err
	}
	if p.sceneIndex != nil {
		if err := p.sceneIndex.DeleteStory(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from scene index: %w", err)
		}
	}
	if err := p.storage.DeleteStory(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove output directory: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("story removed", zap.String("id", id))
	}
	return nil
}

// Detail returns a story with its scenes.
func (p *Pipeline) Detail(ctx context.Context, id string) (*models.StoryDetail, error) {
	story, err := p.storage.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	scenes, err := p.storage.GetScenesByStoryID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenes: %w", err)
	}
	if scenes == nil {
		scenes = []*models.Scene{}
	}
	return &models.StoryDetail{Story: story, Scenes: scenes}, nil
}

// SearchScenes runs a keyword search over scenes and attaches the scene text.
func (p *Pipeline) SearchScenes(ctx context.Context, query string, limit int, fuzzy bool) (*models.SceneSearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &models.ValidationError{Field: "q", Message: "cannot be empty"}
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	resp := &models.SceneSearchResponse{Query: query, Results: []*models.SceneSearchResult{}}
	if p.sceneIndex == nil {
		return resp, nil
	}
	hits, err := p.sceneIndex.Search(ctx, query, limit, &keyword.SearchOptions{FuzzyEnabled: fuzzy, Highlight: true})
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		sc, err := p.storage.GetScene(ctx, hit.StoryID, hit.Index)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result := &models.SceneSearchResult{
			StoryID: hit.StoryID,
			Index:   hit.Index,
			Text:    sc.Text,
			Score:   hit.Score,
		}
		if len(hit.Fragments) > 0 {
			result.Highlight = hit.Fragments[0]
		}
		resp.Results = append(resp.Results, result)
	}
	resp.Total = len(resp.Results)
	return resp, nil
}
