// Package watcher turns story files dropped into inbox directories into storyboard runs.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler is called with the absolute path of a story file.
type Handler func(path string)

// Watcher watches inbox directories and reports new, changed and removed story files.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onStory    Handler
	onRemove   Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before onStory is called.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over roots. Only files whose extension is in extensions are reported
// (empty = all); hidden and editor temp files are always ignored.
func New(roots, extensions []string, recursive bool, onStory, onRemove Handler, opts ...Option) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  recursive,
		onStory:    onStory,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		w.roots = append(w.roots, filepath.Clean(r))
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates missing roots, registers them with fsnotify and processes events until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.fsw = fsw
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watcher started", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	}
	go w.run(ctx, fsw)
	return nil
}

// addTree watches dir, and every directory below it when recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.recursive && !isHidden(path) {
				if err := w.addTree(fsw, path); err != nil && w.logger != nil {
					w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
				// files copied in together with the directory produce no events of their own
				w.syncDirectory(path)
			}
			return
		}
		if w.accepts(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.accepts(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// accepts reports whether path is a story file the watcher should report.
func (w *Watcher) accepts(path string) bool {
	if isHidden(path) || strings.HasSuffix(path, "~") {
		return false
	}
	return matchExtension(path, w.extensions)
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule calls onStory for path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if w.logger != nil {
			w.logger.Debug("watcher story ready", zap.String("path", path))
		}
		if w.onStory != nil {
			w.onStory(path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) syncDirectory(root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!w.recursive || isHidden(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accepts(path) && w.onStory != nil {
			w.onStory(path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) && w.logger != nil {
		w.logger.Debug("watcher sync failed", zap.String("root", root), zap.Error(err))
	}
}

// SyncExistingFiles reports every story file already present in the roots.
// Call it after Start so files dropped while the server was down are processed.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		w.syncDirectory(root)
	}
}

// Directories returns the watched root directories.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher and drops pending debounced files.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stopOnce.Do(func() { close(w.done) })
}
