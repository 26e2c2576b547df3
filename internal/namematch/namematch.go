// Package namematch provides cheap lexical similarity between short feature
// names. It is the pre-filter in front of the much more expensive semantic
// duplicate confirmation, so it errs toward suppressing false positives:
// a single generic shared word ("management") never passes on its own.
package namematch

import (
	"strings"
	"unicode"
)

// DefaultThreshold is the word-overlap ratio at which two names are
// considered similar enough to shortlist for semantic comparison.
const DefaultThreshold = 0.5

// stopwords are dropped before comparing names. Single-character tokens are
// dropped separately in ExtractMeaningfulWords.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"for": {}, "of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {},
	"with": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {},
	"be": {}, "this": {}, "that": {}, "it": {}, "its": {}, "via": {},
}

// ExtractMeaningfulWords lowercases the text, splits on whitespace and
// punctuation, and drops stopwords and single-character tokens.
func ExtractMeaningfulWords(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	meaningful := make(map[string]struct{})
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		meaningful[w] = struct{}{}
	}
	return meaningful
}

// CalculateWordOverlap computes the Jaccard similarity of the two names'
// meaningful-word sets.
//
// A minimum of 2 shared words is required before any overlap is reported,
// except when both names reduce to exactly one meaningful word each, in which
// case a single shared word suffices. This asymmetric threshold suppresses
// false positives from one generic shared word ("User Management" vs
// "Content Management") while still allowing legitimate single-word matches
// ("Login" vs "Login").
func CalculateWordOverlap(name1, name2 string) float64 {
	wordsA := ExtractMeaningfulWords(name1)
	wordsB := ExtractMeaningfulWords(name2)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	shared := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			shared++
		}
	}

	minShared := 2
	if len(wordsA) == 1 && len(wordsB) == 1 {
		minShared = 1
	}
	if shared < minShared {
		return 0
	}

	union := len(wordsA) + len(wordsB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// AreNamesSimilar reports whether two feature names plausibly describe the
// same capability. Exact matches (case-insensitive) and substring containment
// always pass; otherwise the word overlap must meet the threshold.
func AreNamesSimilar(name1, name2 string, threshold float64) bool {
	a := strings.ToLower(strings.TrimSpace(name1))
	b := strings.ToLower(strings.TrimSpace(name2))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return CalculateWordOverlap(name1, name2) >= threshold
}

// FindBestMatch returns the id from nameToID whose name best matches the
// candidate. An exact match (case-insensitive) wins outright; otherwise the
// highest word overlap at or above the threshold wins. Returns "" when
// nothing qualifies. Ties break on the lexically smaller name so repeated
// runs return the same match.
func FindBestMatch(candidate string, nameToID map[string]string, threshold float64) string {
	lowered := strings.ToLower(strings.TrimSpace(candidate))

	bestID := ""
	bestName := ""
	bestOverlap := 0.0

	for name, id := range nameToID {
		if strings.ToLower(strings.TrimSpace(name)) == lowered {
			return id
		}
		overlap := CalculateWordOverlap(candidate, name)
		if overlap < threshold {
			continue
		}
		if overlap > bestOverlap || (overlap == bestOverlap && (bestID == "" || name < bestName)) {
			bestID = id
			bestName = name
			bestOverlap = overlap
		}
	}
	return bestID
}
