package e2e

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/emaki/internal/config"
	"github.com/hyperjump/emaki/internal/fileid"
	"github.com/hyperjump/emaki/internal/imagegen"
	"github.com/hyperjump/emaki/internal/keyword"
	"github.com/hyperjump/emaki/internal/models"
	"github.com/hyperjump/emaki/internal/slideshow"
	"github.com/hyperjump/emaki/internal/storage"
	"github.com/hyperjump/emaki/internal/storyboard"
)

const e2eStories = 40

type countingGenerator struct {
	inner imagegen.Generator
	calls int64
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	atomic.AddInt64(&g.calls, 1)
	return g.inner.Generate(ctx, prompt)
}

type env struct {
	cfg      *config.Config
	store    *storage.SQLiteStorage
	index    *keyword.SceneIndex
	gen      *countingGenerator
	pipeline *storyboard.Pipeline
}

func openEnv(t *testing.T, dir string) *env {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "db", "stories.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
			OutputDir:      filepath.Join(dir, "stories"),
		},
		Embedding: config.EmbeddingConfig{Provider: config.EmbeddingProviderMock},
		Image:     config.ImageConfig{Provider: config.ImageProviderPlaceholder, Width: 8, Height: 6},
		Watch:     config.WatchConfig{Extensions: SupportedFileExtensions},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	index, err := keyword.NewSceneIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		t.Fatal(err)
	}
	gen := &countingGenerator{inner: imagegen.NewPlaceholderGenerator(cfg.Image.Width, cfg.Image.Height)}
	return &env{
		cfg:      cfg,
		store:    store,
		index:    index,
		gen:      gen,
		pipeline: storyboard.NewPipeline(store, TopicEmbedder{}, gen, index, cfg),
	}
}

func (e *env) Close() {
	_ = e.index.Close()
	_ = e.store.Close()
}

func searchStoryIDs(t *testing.T, p *storyboard.Pipeline, query string, wantIndex int) []string {
	t.Helper()
	resp, err := p.SearchScenes(context.Background(), query, 100, false)
	if err != nil {
		t.Fatalf("search %q: %v", query, err)
	}
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if wantIndex > 0 && r.Index != wantIndex {
			continue
		}
		ids = append(ids, r.StoryID)
	}
	sort.Strings(ids)
	return ids
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func TestE2E_StoryboardsAndSceneSearch(t *testing.T) {
	dir := t.TempDir()
	e := openEnv(t, dir)
	ctx := context.Background()
	corpus := BuildCorpus(e2eStories)

	for _, input := range corpus.Inputs() {
		story, err := e.pipeline.Run(ctx, input)
		if err != nil {
			t.Fatalf("run %s: %v", input.ID, err)
		}
		if story.Status != models.StatusReady || story.SceneCount != 2 {
			t.Fatalf("%s: status %s, %d scenes; want ready with 2", input.ID, story.Status, story.SceneCount)
		}
	}
	if got := atomic.LoadInt64(&e.gen.calls); got != 2*e2eStories {
		t.Errorf("generated %d images, want %d", got, 2*e2eStories)
	}

	sample := corpus.Stories[7]
	sampleDir, err := e.pipeline.StoryDir(sample.ID)
	if err != nil {
		t.Fatal(err)
	}
	session, err := slideshow.LoadSession(filepath.Join(sampleDir, storage.ManifestFile))
	if err != nil {
		t.Fatalf("load manifest of %s: %v", sample.ID, err)
	}
	if session.Len() != 2 {
		t.Errorf("manifest of %s has %d slides, want 2", sample.ID, session.Len())
	}
	if _, err := os.Stat(session.Current().Image); err != nil {
		t.Errorf("first image of %s missing: %v", sample.ID, err)
	}

	for ti, topic := range Topics {
		t.Run("topic-"+topic.Word, func(t *testing.T) {
			got := searchStoryIDs(t, e.pipeline, topic.Word, 0)
			if want := corpus.StoriesWithTopic(ti); !sameIDs(got, want) {
				t.Errorf("query %q: got stories %v, want %v", topic.Word, got, want)
			}
		})
	}
	for _, s := range corpus.Stories[:10] {
		t.Run("marker-"+s.Marker, func(t *testing.T) {
			got := searchStoryIDs(t, e.pipeline, s.Marker, 1)
			if !sameIDs(got, []string{s.ID}) {
				t.Errorf("marker %q should hit scene 1 of %s only, got %v", s.Marker, s.ID, got)
			}
		})
	}

	// Everything survives a restart.
	e.Close()
	e = openEnv(t, dir)
	defer e.Close()
	total, err := e.store.CountStories(ctx)
	if err != nil || total != e2eStories {
		t.Fatalf("after reopen: %d stories, %v", total, err)
	}
	if got := searchStoryIDs(t, e.pipeline, Topics[0].Word, 0); !sameIDs(got, corpus.StoriesWithTopic(0)) {
		t.Errorf("after reopen: query %q got %v", Topics[0].Word, got)
	}

	if err := e.pipeline.DeleteStory(ctx, sample.ID); err != nil {
		t.Fatal(err)
	}
	if got := searchStoryIDs(t, e.pipeline, sample.Marker, 0); len(got) != 0 {
		t.Errorf("deleted story still searchable: %v", got)
	}
	if _, err := os.Stat(sampleDir); !os.IsNotExist(err) {
		t.Errorf("storyboard dir of deleted story should be gone, stat err = %v", err)
	}
}

// TestE2E_FileStoryboards writes the corpus as .txt, .md and .docx files and builds them with
// RunDirectory. Story ids are derived from the file paths.
func TestE2E_FileStoryboards(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox", "nested")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatal(err)
	}
	e := openEnv(t, dir)
	defer e.Close()
	ctx := context.Background()

	corpus := BuildCorpus(15)
	fileIDs := make(map[string]string)
	for i, s := range corpus.Stories {
		ext := SupportedFileExtensions[i%len(SupportedFileExtensions)]
		path := filepath.Join(inbox, s.ID+ext)
		if err := os.WriteFile(path, StoryFile(ext, s.Content), 0644); err != nil {
			t.Fatal(err)
		}
		abs, _ := filepath.Abs(path)
		fileIDs[s.ID] = fileid.StoryID(abs)
	}
	if err := os.WriteFile(filepath.Join(inbox, "notes.csv"), []byte("a,b"), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := e.pipeline.RunDirectory(ctx, filepath.Join(dir, "inbox"), nil)
	if err != nil {
		t.Fatalf("run directory: %v", err)
	}
	if n != len(corpus.Stories) {
		t.Fatalf("built %d stories, want %d", n, len(corpus.Stories))
	}
	for _, s := range corpus.Stories {
		detail, err := e.pipeline.Detail(ctx, fileIDs[s.ID])
		if err != nil {
			t.Fatalf("detail of %s: %v", s.ID, err)
		}
		if len(detail.Scenes) != 2 {
			t.Errorf("%s: %d scenes, want 2: %v", s.ID, len(detail.Scenes), detail.Scenes)
		}
		if !fileid.IsFileStory(detail.ID) {
			t.Errorf("%s: id %s should be a file story id", s.ID, detail.ID)
		}
	}

	calls := atomic.LoadInt64(&e.gen.calls)
	if _, err := e.pipeline.RunDirectory(ctx, filepath.Join(dir, "inbox"), nil); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&e.gen.calls); got != calls {
		t.Errorf("unchanged files should be skipped, but %d more images were generated", got-calls)
	}
}
