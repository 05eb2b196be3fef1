package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain passes content through as-is, replacing invalid UTF-8
// sequences with the replacement character so downstream tokenization
// never sees broken runes.
func extractPlain(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), "�"), nil
}
