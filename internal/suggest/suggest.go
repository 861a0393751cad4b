// Package suggest provides fuzzy "did you mean" matching for CLI flags and
// config keys using Levenshtein distance.
package suggest

import (
	"slices"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Closest returns up to three candidates near word, best first. A candidate
// containing word as a dotted segment (e.g. "interval" in "sync.interval")
// always matches.
func Closest(word string, candidates []string) []string {
	word = strings.ToLower(strings.TrimLeft(word, "-"))
	if word == "" {
		return nil
	}

	type scored struct {
		s     string
		score int
	}
	var matches []scored
	maxDist := max(2, len(word)/3)
	for _, c := range candidates {
		norm := strings.ToLower(strings.TrimLeft(c, "-"))
		dist := levenshtein(word, norm)
		if slices.Contains(strings.Split(norm, "."), word) {
			dist = min(dist, 1)
		}
		if dist <= maxDist {
			matches = append(matches, scored{c, dist})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int { return a.score - b.score })

	var out []string
	for i := 0; i < len(matches) && i < 3; i++ {
		out = append(out, matches[i].s)
	}
	return out
}

// flagHints maps flags people reach for to the ones rollcall has.
var flagHints = map[string]string{
	"student":  "pass the student id as the first argument",
	"status":   "pass present|absent as the second argument, or --absent",
	"present":  "present is the default status",
	"class-id": "--class, -c",
	"tag":      "--rfid",
	"card":     "--rfid",
	"yes":      "--force",
	"y":        "--force",
	"watch":    "rollcall status --watch",
	"all":      "rollcall retry with no ids retries every failed mark",
}

// FlagHint returns a hint for a commonly misused flag, or "".
func FlagHint(flag string) string {
	return flagHints[strings.ToLower(strings.TrimLeft(flag, "-"))]
}
