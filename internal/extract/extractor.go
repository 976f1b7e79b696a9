// Package extract reads story text out of plain text, PDF and DOCX files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes caps the size of a story file read from disk.
const DefaultMaxBytes = 32 << 20

// ErrTooLarge is returned when a story file exceeds the extractor's size limit.
var ErrTooLarge = errors.New("story file too large")

// SupportedExtensions lists the story file extensions with a dedicated reader.
var SupportedExtensions = []string{".txt", ".md", ".pdf", ".docx"}

type readerFunc func(content []byte) (string, error)

// Extractor turns story files into plain text, choosing a reader by file extension.
// Extensions without a reader are read as plain text.
type Extractor struct {
	readers  map[string]readerFunc
	maxBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes sets the largest file Extract accepts. Zero or less removes the limit.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) { e.maxBytes = n }
}

// NewExtractor returns an Extractor for SupportedExtensions.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		readers: map[string]readerFunc{
			".txt":  extractPlain,
			".md":   extractPlain,
			".pdf":  extractPDF,
			".docx": extractDOCX,
		},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether ext (with leading dot, any case) has a dedicated reader.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.readers[strings.ToLower(ext)]
	return ok
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if e.maxBytes > 0 && info.Size() > e.maxBytes {
		return "", fmt.Errorf("%s is %d bytes, limit %d: %w", filepath.Base(path), info.Size(), e.maxBytes, ErrTooLarge)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes returns the text of content, interpreted by ext.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	read, ok := e.readers[strings.ToLower(ext)]
	if !ok {
		read = extractPlain
	}
	return read(content)
}
