// Package strings provides list helpers for configuration values.
package strings

import (
	"slices"
	"strings"
)

// SplitList splits raw on sep and cleans the parts with Clean.
//
// Example:
//
//	SplitList(" g1 ,g2,, g1", ",")
//	// Returns: []string{"g1", "g2"}
func SplitList(raw, sep string) []string {
	return Clean(strings.Split(raw, sep))
}

// Clean trims every value and drops blanks and repeats, keeping the first
// occurrence. The result is never nil.
func Clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
