package search

import (
	"strings"
	"unicode"
)

// DescriptionTokens splits text on runs of non-word characters and
// lower-cases the pieces. Letters and digits of any script count as word
// characters, as does the underscore.
func DescriptionTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// MatchesTerm reports whether a rule matches a free-text search term:
// the name contains the term (case-insensitive), a category equals the
// term exactly, or the description contains the term as a whole token
// (case-insensitive).
func MatchesTerm(name string, categories []string, description, term string) bool {
	lower := strings.ToLower(term)

	if strings.Contains(strings.ToLower(name), lower) {
		return true
	}

	for _, c := range categories {
		if c == term {
			return true
		}
	}

	for _, tok := range DescriptionTokens(description) {
		if tok == lower {
			return true
		}
	}
	return false
}
