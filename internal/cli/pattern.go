// Package cli provides shared utilities for pinvault CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandPattern expands a glob pattern against available entry names.
// If the pattern contains glob characters (*?[), it performs glob
// matching; otherwise it requires an exact match.
func ExpandPattern(pattern string, names []string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		for _, name := range names {
			if name == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("entry '%s' not found", pattern)
	}

	var matches []string
	for _, name := range names {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no entries match pattern '%s'", pattern)
	}
	return matches, nil
}

// SortNames returns a sorted copy of the names slice.
func SortNames(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return sorted
}
