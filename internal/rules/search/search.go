// Package search implements the matching used for rule lookup and command
// completion.
//
// Completion uses two strategies. Anchored matching accepts a query that
// starts at the beginning of the candidate or right after an underscore.
// Camel-case suffix matching splits the candidate at upper-case letters and
// accepts a query that prefixes any tail of the resulting words, so "bar"
// reaches "fooBarBaz". Suggest prefers anchored results and only falls back
// to camel-case matches when nothing is anchored.
package search

import (
	"strings"
	"unicode"
)

// AnchoredMatch reports whether query occurs in candidate at position 0 or
// immediately after an underscore. Both strings are compared as given;
// callers lower-case them for case-insensitive matching.
func AnchoredMatch(query, candidate string) bool {
	i := 0
	for {
		if strings.HasPrefix(candidate[i:], query) {
			return true
		}
		j := strings.IndexByte(candidate[i:], '_')
		if j < 0 {
			return false
		}
		i += j + 1
	}
}

// CamelWords splits s before every upper-case letter except the first
// character and lower-cases each word.
func CamelWords(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, strings.ToLower(s[start:i]))
			start = i
		}
	}
	if start < len(s) {
		words = append(words, strings.ToLower(s[start:]))
	}
	return words
}

// CamelSuffixMatch reports whether query is a prefix of any suffix
// concatenation of candidate's camel-case words. For "fooBarBaz" the
// concatenations are "foobarbaz", "barbaz" and "baz".
func CamelSuffixMatch(query, candidate string) bool {
	query = strings.ToLower(query)
	words := CamelWords(candidate)
	for i := range words {
		if strings.HasPrefix(strings.Join(words[i:], ""), query) {
			return true
		}
	}
	return false
}

// Suggest returns the candidates that anchor-match query, or, when there
// are none, the candidates that camel-case-suffix-match it. Matching is
// case-insensitive and the input order is preserved.
func Suggest(query string, candidates []string) []string {
	q := strings.ToLower(query)

	var anchored, smart []string
	for _, c := range candidates {
		if AnchoredMatch(q, strings.ToLower(c)) {
			anchored = append(anchored, c)
		}
		if CamelSuffixMatch(q, c) {
			smart = append(smart, c)
		}
	}

	if len(anchored) > 0 {
		return anchored
	}
	return smart
}

// SuggestAnchored returns the candidates that anchor-match query,
// case-insensitively, without the camel-case fallback.
func SuggestAnchored(query string, candidates []string) []string {
	q := strings.ToLower(query)

	var out []string
	for _, c := range candidates {
		if AnchoredMatch(q, strings.ToLower(c)) {
			out = append(out, c)
		}
	}
	return out
}
