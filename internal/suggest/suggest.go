// Package suggest offers "did you mean" hints for mistyped names.
package suggest

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Closest returns the candidate nearest to input by edit distance, or ""
// when no candidate is within a third of its own length (at least one edit).
// Ties go to the earlier candidate.
func Closest(input string, candidates []string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}

	best, bestDist := "", -1
	for _, cand := range candidates {
		dist := levenshtein.ComputeDistance(input, strings.ToLower(cand))
		if dist > limit(len(cand)) {
			continue
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = cand, dist
		}
	}
	return best
}

// Hint formats a " (did you mean X?)" suffix, or "" when nothing is close.
func Hint(input string, candidates []string) string {
	if s := Closest(input, candidates); s != "" {
		return " (did you mean " + s + "?)"
	}
	return ""
}

func limit(n int) int {
	return max(1, n/3)
}
