package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(manifest, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	story := filepath.Join(dir, "story-1")
	if err := os.MkdirAll(filepath.Join(story, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(story, "image-1.png"), []byte("abcd"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(story, "nested", "image-2.png"), []byte("ef"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{manifest}, 3},
		{"directory is recursive", []string{story}, 6},
		{"file and directory", []string{manifest, story}, 9},
		{"missing path skipped", []string{filepath.Join(dir, "gone"), story}, 6},
		{"empty path skipped", []string{"", manifest}, 3},
		{"no paths", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}
