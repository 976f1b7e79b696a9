package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects callback paths.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) has(suffix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startWatcher(t *testing.T, roots, exts []string, stories, removed *recorder) *Watcher {
	t.Helper()
	w := New(roots, exts, true, stories.add, removed.add, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestWatcher_NewStoryFile(t *testing.T) {
	dir := t.TempDir()
	stories, removed := &recorder{}, &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, stories, removed)

	writeFile(t, filepath.Join(dir, "knight.txt"), "The knight rode north.")
	writeFile(t, filepath.Join(dir, "notes.xyz"), "skip")
	writeFile(t, filepath.Join(dir, ".draft.txt"), "hidden")

	require.Eventually(t, func() bool { return stories.has("knight.txt") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.False(t, stories.has("notes.xyz"))
	assert.False(t, stories.has(".draft.txt"))
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	stories, removed := &recorder{}, &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, stories, removed)

	path := filepath.Join(dir, "story.txt")
	for i := 0; i < 5; i++ {
		writeFile(t, path, strings.Repeat("line. ", i+1))
	}
	require.Eventually(t, func() bool { return stories.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, stories.count())
}

func TestWatcher_RemoveStoryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "Soon gone.")
	stories, removed := &recorder{}, &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, stories, removed)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return removed.has("gone.txt") }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewNestedDirectory(t *testing.T) {
	dir := t.TempDir()
	stories, removed := &recorder{}, &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, stories, removed)

	writeFile(t, filepath.Join(dir, "level1", "level2", "deep.txt"), "Deep story.")
	require.Eventually(t, func() bool { return stories.has("deep.txt") }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "A.")
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "B.")
	writeFile(t, filepath.Join(dir, "c.pdf"), "C.")

	stories := &recorder{}
	w := New([]string{dir}, []string{".txt", ".md"}, true, stories.add, nil)
	w.SyncExistingFiles()

	assert.True(t, stories.has("a.txt"))
	assert.True(t, stories.has("b.md"))
	assert.False(t, stories.has("c.pdf"))
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox")
	stories, removed := &recorder{}, &recorder{}
	w := startWatcher(t, []string{root}, nil, stories, removed)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, []string{root}, w.Directories())
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"/a/story.txt", []string{".txt"}, true},
		{"/a/story.TXT", []string{"txt"}, true},
		{"/a/story.md", []string{".txt"}, false},
		{"/a/story", []string{".txt"}, false},
		{"/a/anything.bin", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}
