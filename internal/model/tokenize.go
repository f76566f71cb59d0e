package model

import (
	"strings"
	"unicode"
)

// tokenize lowercases the text and splits it on any non-alphanumeric rune.
// Both the encoder and the classifiers share this so a term learned at
// training time matches the same surface form at inference time.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
