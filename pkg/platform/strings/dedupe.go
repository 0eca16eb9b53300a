// Package strings holds slice helpers for slug and key lists.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim drops empty values and duplicates after trimming. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with lowercasing, for slugs taken from user
// input.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

// SplitList splits a comma separated query or config value into clean entries.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// Union merges key lists into one sorted list without duplicates.
func Union(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	out := DedupeAndTrim(all)
	slices.Sort(out)
	return out
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
