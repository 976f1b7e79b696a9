package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/hyperjump/emaki/internal/scene"
)

// SupportedFileExtensions are the story file types written by file-based tests.
// PDF extraction is covered by internal/extract tests; a minimal PDF with extractable text is not generated here.
var SupportedFileExtensions = []string{".txt", ".md", ".docx"}

// StoryFile returns the bytes of a story file of the given extension holding text.
// A .docx gets one paragraph per sentence.
func StoryFile(ext, text string) []byte {
	switch ext {
	case ".docx":
		return minimalDocx(text)
	case ".md":
		return []byte("# Story\n\n" + text)
	default:
		return []byte(text)
	}
}

func minimalDocx(text string) []byte {
	var body strings.Builder
	for _, s := range scene.Tokenize(text) {
		var esc bytes.Buffer
		_ = xml.EscapeText(&esc, []byte(strings.TrimSpace(s)+"."))
		body.WriteString(`<w:p><w:r><w:t>` + esc.String() + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}
