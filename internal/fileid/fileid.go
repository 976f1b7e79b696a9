// Package fileid derives story ids from story file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Prefix marks story ids derived from a file path.
const Prefix = "file:"

// StoryID returns a stable story id for path. Relative paths are made absolute first,
// so the same file always maps to the same story and re-processing replaces it.
func StoryID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return Prefix + hex.EncodeToString(sum[:])
}

// IsFileStory reports whether id was produced by StoryID.
func IsFileStory(id string) bool {
	return strings.HasPrefix(id, Prefix)
}
