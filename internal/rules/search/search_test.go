package search

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAnchoredMatch(t *testing.T) {
	tests := []struct {
		query, candidate string
		want             bool
	}{
		{"bar", "foo_bar_baz", true},
		{"oo", "foo_bar_baz", false},
		{"foo", "foo_bar", true},
		{"baz", "foo_bar_baz", true},
		{"ar", "foo_bar", false},
		{"", "anything", true},
		{"x", "", false},
		{"_bar", "foo__bar", true},
		{"bar", "foobar", false},
	}

	for _, tt := range tests {
		if got := AnchoredMatch(tt.query, tt.candidate); got != tt.want {
			t.Errorf("AnchoredMatch(%q, %q) = %v, want %v", tt.query, tt.candidate, got, tt.want)
		}
	}
}

func TestCamelWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"fooBarBaz", []string{"foo", "bar", "baz"}},
		{"FooBar", []string{"foo", "bar"}},
		{"tnt", []string{"tnt"}},
		{"optimizedTNT", []string{"optimized", "t", "n", "t"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := CamelWords(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CamelWords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCamelSuffixMatch(t *testing.T) {
	tests := []struct {
		query, candidate string
		want             bool
	}{
		{"bar", "fooBarBaz", true},
		{"barb", "fooBarBaz", true},
		{"baz", "fooBarBaz", true},
		{"foobar", "fooBarBaz", true},
		{"xyz", "fooBarBaz", false},
		{"arb", "fooBarBaz", false},
		{"BAR", "fooBarBaz", true},
		{"tnt", "optimizedTNT", true},
	}
	for _, tt := range tests {
		if got := CamelSuffixMatch(tt.query, tt.candidate); got != tt.want {
			t.Errorf("CamelSuffixMatch(%q, %q) = %v, want %v", tt.query, tt.candidate, got, tt.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		candidates []string
		want       []string
	}{
		{
			name:       "falls back to camel case",
			query:      "bar",
			candidates: []string{"fooBar", "bazBar"},
			want:       []string{"fooBar", "bazBar"},
		},
		{
			name:       "anchored wins and is not merged",
			query:      "bar",
			candidates: []string{"fooBar", "bar_limit", "foo_bar"},
			want:       []string{"bar_limit", "foo_bar"},
		},
		{
			name:       "case insensitive anchored",
			query:      "Fill",
			candidates: []string{"fillLimit", "fillUpdates", "pushLimit"},
			want:       []string{"fillLimit", "fillUpdates"},
		},
		{
			name:       "nothing matches",
			query:      "zzz",
			candidates: []string{"fillLimit"},
			want:       nil,
		},
		{
			name:       "empty query returns all",
			query:      "",
			candidates: []string{"b", "a"},
			want:       []string{"b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggest(tt.query, tt.candidates); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggest(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSuggestAnchored(t *testing.T) {
	got := SuggestAnchored("li", []string{"limit", "fillLimit", "fill_limit"})
	want := []string{"limit", "fill_limit"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestAnchored() = %v, want %v", got, want)
	}
}

func TestDescriptionTokens(t *testing.T) {
	got := DescriptionTokens("Customizable fill/clone volume-limit, 32k default!")
	want := []string{"customizable", "fill", "clone", "volume", "limit", "32k", "default"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DescriptionTokens() = %v, want %v", got, want)
	}

	got = DescriptionTokens("Límite de relleno")
	want = []string{"límite", "de", "relleno"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DescriptionTokens(non-ascii) = %v, want %v", got, want)
	}
}

func TestMatchesTerm(t *testing.T) {
	cats := []string{"creative", "tag1"}
	desc := "Customizable fill volume limit"

	tests := []struct {
		term string
		want bool
	}{
		{"Fill", true},      // name substring, case-insensitive
		{"illLim", true},    // name substring anywhere
		{"tag1", true},      // exact category
		{"Tag1", false},     // category is case-sensitive
		{"VOLUME", true},    // description token, case-insensitive
		{"vol", false},      // description needs the whole token
		{"survival", false}, // nothing
	}
	for _, tt := range tests {
		if got := MatchesTerm("fillLimit", cats, desc, tt.term); got != tt.want {
			t.Errorf("MatchesTerm(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}

func TestAnchoredMatch_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("query matches at the start of the candidate", prop.ForAll(
		func(q, rest string) bool {
			return AnchoredMatch(q, q+rest)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("query matches after any underscore", prop.ForAll(
		func(head, q, tail string) bool {
			return AnchoredMatch(q, head+"_"+q+tail)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("a match implies the query is a substring", prop.ForAll(
		func(q, c string) bool {
			return !AnchoredMatch(q, c) || strings.Contains(c, q)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestSuggest_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("results are a subset of the candidates", prop.ForAll(
		func(q string, candidates []string) bool {
			set := make(map[string]bool, len(candidates))
			for _, c := range candidates {
				set[c] = true
			}
			for _, s := range Suggest(q, candidates) {
				if !set[s] {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("anchored results take precedence", prop.ForAll(
		func(q string, candidates []string) bool {
			anchored := SuggestAnchored(q, candidates)
			if len(anchored) == 0 {
				return true
			}
			return reflect.DeepEqual(Suggest(q, candidates), anchored)
		},
		gen.AlphaString(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("camel suffix reaches every word", prop.ForAll(
		func(head, word string) bool {
			if word == "" {
				return true
			}
			candidate := head + strings.ToUpper(word[:1]) + word[1:]
			return CamelSuffixMatch(strings.ToLower(word), candidate)
		},
		gen.Identifier(),
		gen.AlphaLowerString(),
	))

	properties.TestingRun(t)
}
