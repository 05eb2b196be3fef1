// Package analyzer provides the text tokenization collaborator used by the
// statistical and lexical backends.
package analyzer

import (
	"fmt"
	"strings"
	"unicode"
)

// Analyzer turns document text into normalized tokens.
type Analyzer interface {
	// Tokenize returns lowercase tokens in document order.
	Tokenize(text string) []string
}

// New resolves an analyzer spec from project configuration. Supported specs:
// "simple" (lowercase word tokens, minimum length 3) and "raw" (whitespace
// split, no filtering). Unknown specs fail at project load, not suggest time.
func New(spec string) (Analyzer, error) {
	switch spec {
	case "", "simple":
		return &Simple{MinTokenLength: 3}, nil
	case "raw":
		return &Raw{}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q (supported: simple, raw)", spec)
	}
}

// Simple lowercases text and splits on non-letter/non-digit runes, dropping
// tokens shorter than MinTokenLength and tokens that are all digits.
type Simple struct {
	MinTokenLength int
}

// Tokenize implements Analyzer.
func (a *Simple) Tokenize(text string) []string {
	minLen := a.MinTokenLength
	if minLen <= 0 {
		minLen = 3
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) < minLen || allDigits(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Raw splits on whitespace without normalization. Useful when the input is
// already preprocessed upstream.
type Raw struct{}

// Tokenize implements Analyzer.
func (a *Raw) Tokenize(text string) []string {
	return strings.Fields(text)
}

// CountTokens returns token frequencies for text under the given analyzer.
func CountTokens(a Analyzer, text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range a.Tokenize(text) {
		counts[tok]++
	}
	return counts
}
