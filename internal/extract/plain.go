package extract

import "strings"

// extractPlain returns content as a string with invalid UTF-8 sequences replaced by U+FFFD.
func extractPlain(content []byte) (string, error) {
	return strings.ToValidUTF8(string(content), "�"), nil
}
