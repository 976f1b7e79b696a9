package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text layer of the whole document. Scanned PDFs without one yield "".
func extractPDF(content []byte) (text string, err error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	// The reader panics on some malformed content streams.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("read PDF text: %v", p)
		}
	}()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
