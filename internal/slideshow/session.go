// Package slideshow steps through a storyboard manifest in the terminal.
package slideshow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/emaki/internal/storage"
)

// ErrEmpty is returned when a session would have no slides.
var ErrEmpty = errors.New("slideshow: manifest has no entries")

// Slide is one image and its caption.
type Slide struct {
	Position int // 1-based
	Total    int
	Image    string
	Caption  string
}

// Session holds the cursor and pause state of one slideshow. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	entries []storage.ManifestEntry
	images  []string
	idx     int
	paused  bool
}

// NewSession creates a session over entries. images holds the resolved image path of each entry;
// when nil the entry names are used as-is.
func NewSession(entries []storage.ManifestEntry, images []string) (*Session, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	if images == nil {
		images = make([]string, len(entries))
		for i, e := range entries {
			images[i] = e.Image
		}
	}
	if len(images) != len(entries) {
		return nil, fmt.Errorf("slideshow: %d images for %d entries", len(images), len(entries))
	}
	return &Session{entries: entries, images: images}, nil
}

// LoadSession reads the manifest at path and resolves images relative to it.
func LoadSession(path string) (*Session, error) {
	m, err := storage.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	images := make([]string, len(m.Entries))
	for i := range m.Entries {
		images[i] = m.ImagePath(path, i)
	}
	return NewSession(m.Entries, images)
}

// Len returns the number of slides.
func (s *Session) Len() int {
	return len(s.entries)
}

// Current returns the slide under the cursor.
func (s *Session) Current() Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slideLocked()
}

func (s *Session) slideLocked() Slide {
	return Slide{
		Position: s.idx + 1,
		Total:    len(s.entries),
		Image:    s.images[s.idx],
		Caption:  s.entries[s.idx].Caption,
	}
}

// Next moves the cursor forward, wrapping to the first slide.
func (s *Session) Next() Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = (s.idx + 1) % len(s.entries)
	return s.slideLocked()
}

// Prev moves the cursor back, wrapping to the last slide.
func (s *Session) Prev() Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.idx = (s.idx - 1 + n) % n
	return s.slideLocked()
}

// TogglePause flips the pause state and returns the new state.
func (s *Session) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// Paused reports whether auto-advance is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
