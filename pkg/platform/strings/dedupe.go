// Package strings provides string slice helpers.
package strings

import (
	"strings"
)

// Dedupe applies normalize to every element and drops blanks and repeats.
// First occurrence wins, order is preserved. A nil normalize keeps values as-is.
func Dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if normalize != nil {
			v = normalize(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DedupeAndTrim trims whitespace, then removes blanks and duplicates.
//
//	DedupeAndTrim([]string{" retirement_form ", "id_proof", "retirement_form", ""})
//	// []string{"retirement_form", "id_proof"}
func DedupeAndTrim(values []string) []string {
	return Dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with case folding.
func DedupeAndTrimLower(values []string) []string {
	return Dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}
