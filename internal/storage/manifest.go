package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the name of the storyboard manifest inside a story's output directory.
const ManifestFile = "story.json"

// ManifestEntry maps one generated image to the scene text it illustrates.
type ManifestEntry struct {
	Image   string
	Caption string
}

// Manifest is the ordered image-to-caption mapping of a storyboard.
// It encodes as a JSON object whose keys keep their insertion order.
type Manifest struct {
	Entries []ManifestEntry
}

// ImageName returns the file name of the image for the 1-based scene index n.
func ImageName(n int) string {
	return fmt.Sprintf("image-%d.png", n)
}

// NewManifest builds a manifest for scenes, keyed image-1.png..image-N.png.
func NewManifest(scenes []string) *Manifest {
	m := &Manifest{Entries: make([]ManifestEntry, len(scenes))}
	for i, s := range scenes {
		m.Entries[i] = ManifestEntry{Image: ImageName(i + 1), Caption: s}
	}
	return m
}

// MarshalJSON encodes the manifest as an object in entry order.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Image)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Caption)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}
	m.Entries = m.Entries[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("manifest key must be a string")
		}
		var caption string
		if err := dec.Decode(&caption); err != nil {
			return fmt.Errorf("manifest entry %s: %w", key, err)
		}
		m.Entries = append(m.Entries, ManifestEntry{Image: key, Caption: caption})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(path string, m *Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return fmt.Errorf("failed to format manifest: %w", err)
	}
	out.WriteByte('\n')
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// ImagePath resolves an entry's image relative to the manifest directory.
func (m *Manifest) ImagePath(manifestPath string, i int) string {
	img := m.Entries[i].Image
	if filepath.IsAbs(img) {
		return img
	}
	return filepath.Join(filepath.Dir(manifestPath), img)
}
