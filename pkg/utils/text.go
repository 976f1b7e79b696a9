// Package utils provides shared helpers for text, disk usage, HTTP clients and logging.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most maxLen runes and appends "..." when it cut anything.
// A maxLen of 0 or less disables truncation.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:maxLen]), " ") + "..."
}

// TruncateWords keeps the first maxWords whitespace-separated words of s.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if maxWords <= 0 || len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// CollapseSpace replaces every run of whitespace (newlines included) with a single space
// and trims the ends, so multi-line scene text fits on one terminal row.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
