package categorizer

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Fuzzy fallback limits. Only single-word keywords of a reasonable length
// participate, and at most two edits are tolerated, so "STARBUKS" still
// lands on "STARBUCKS" without short keywords swallowing everything.
const (
	fuzzyMinKeywordLen = 5
	fuzzyMaxDistance   = 2
)

// fuzzyMatch finds the closest rule for a description by Levenshtein
// distance over its words. Ties resolve to the lower rule index, keeping
// the result deterministic.
func fuzzyMatch(description string, rules []Rule) (int, bool) {
	words := strings.Fields(strings.ToUpper(description))
	best := -1
	bestDistance := fuzzyMaxDistance + 1

	for i, rule := range rules {
		kw := strings.ToUpper(strings.TrimSpace(rule.Keyword))
		if len(kw) < fuzzyMinKeywordLen || strings.ContainsRune(kw, ' ') {
			continue
		}
		for _, word := range words {
			if len(word) < fuzzyMinKeywordLen {
				continue
			}
			if !fuzzy.MatchFold(word, kw) && !fuzzy.MatchFold(kw, word) {
				continue
			}
			distance := fuzzy.LevenshteinDistance(word, kw)
			if distance < bestDistance {
				bestDistance = distance
				best = i
			}
		}
	}

	return best, best >= 0
}
