package errors

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// maxSuggestions bounds how many close names are reported.
const maxSuggestions = 3

// SuggestNames returns up to three candidates close to name, nearest first.
// A candidate qualifies when its edit distance is at most a third of the
// longer string's length, or when one name contains the other.
func SuggestNames(name string, candidates []string) []string {
	if name == "" {
		return nil
	}

	type scored struct {
		name     string
		distance int
	}

	lower := strings.ToLower(name)
	var matches []scored
	for _, c := range candidates {
		if c == name || c == "" {
			continue
		}
		lc := strings.ToLower(c)
		d := levenshtein.Distance(lower, lc, nil)
		limit := max(len(lower), len(lc)) / 3
		if d <= max(limit, 1) || strings.Contains(lc, lower) || strings.Contains(lower, lc) {
			matches = append(matches, scored{name: c, distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].name < matches[j].name
	})

	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, m.name)
	}
	return out
}
