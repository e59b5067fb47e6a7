// Copyright 2024-2026 Aiku AI

package trigger

import (
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Similarity scores how close two strings are. Implementations must return
// a value in [0, 1] where 1 means identical.
type Similarity func(a, b string) float64

// Levenshtein is the default Similarity. Both strings are lower-cased, then
// the edit distance is normalised by the longer string's length in runes.
// Two empty strings are identical; an empty and a non-empty string score 0.
func Levenshtein(a, b string) float64 {
	// cases.Caser is stateful, so one per call.
	lower := cases.Lower(language.Und)
	a, b = lower.String(a), lower.String(b)
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := max(la, lb)
	return float64(longest-fuzzy.LevenshteinDistance(a, b)) / float64(longest)
}
