// Package scene splits story text into sentences and merges adjacent sentences into scenes.
package scene

import "strings"

// isTerminal reports whether r ends a sentence.
func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Tokenize splits text on '.', '!' and '?' and returns the non-empty spans between them, in order.
// Spans are returned verbatim: leading and trailing whitespace is kept, so callers must not assume
// trimmed sentences. Text without terminal punctuation yields a single sentence; empty text yields nil.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, isTerminal)
}
