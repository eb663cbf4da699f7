package knowledge

import (
	"regexp"
	"strings"
)

var (
	nonWordRE    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a question into its matching key: lower-case,
// punctuation stripped, runs of whitespace collapsed to a single space,
// leading/trailing whitespace trimmed. Idempotent, so a stored key and a
// freshly computed lookup key always compare directly.
func Normalize(question string) string {
	s := strings.ToLower(question)
	s = nonWordRE.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Similarity scores the word overlap between two normalized keys. Each query
// word counts once if it equals any candidate word; the score is the match
// count over the longer of the two word lists. Order-independent, no
// stemming, repeats allowed. Known-crude on purpose.
func Similarity(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)

	longest := len(wordsA)
	if len(wordsB) > longest {
		longest = len(wordsB)
	}
	if longest == 0 {
		return 0
	}

	matches := 0
	for _, wa := range wordsA {
		for _, wb := range wordsB {
			if wa == wb {
				matches++
				break
			}
		}
	}

	return float64(matches) / float64(longest)
}
