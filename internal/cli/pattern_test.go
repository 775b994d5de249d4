package cli

import (
	"sort"
	"testing"
)

func TestExpandPattern(t *testing.T) {
	availableNames := []string{
		"bank-checking",
		"bank-savings",
		"wifi-home",
		"wifi-office",
		"recovery-codes",
	}

	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact match",
			pattern:  "recovery-codes",
			expected: []string{"recovery-codes"},
		},
		{
			name:     "wildcard prefix",
			pattern:  "wifi-*",
			expected: []string{"wifi-home", "wifi-office"},
		},
		{
			name:     "wildcard suffix",
			pattern:  "*-codes",
			expected: []string{"recovery-codes"},
		},
		{
			name:     "question mark",
			pattern:  "wifi-????",
			expected: []string{"wifi-home"},
		},
		{
			name:     "match all",
			pattern:  "*",
			expected: []string{"bank-checking", "bank-savings", "wifi-home", "wifi-office", "recovery-codes"},
		},
		{
			name:    "no match glob",
			pattern: "card-*",
			wantErr: true,
		},
		{
			name:    "no match exact",
			pattern: "missing",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[invalid",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ExpandPattern(tc.pattern, availableNames)

			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tc.expected) {
				t.Errorf("got %d results, want %d", len(result), len(tc.expected))
				return
			}

			for _, exp := range tc.expected {
				found := false
				for _, r := range result {
					if r == exp {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("missing expected name: %s", exp)
				}
			}
		})
	}
}

func TestSortNames(t *testing.T) {
	names := []string{"c", "a", "b"}

	sorted := SortNames(names)
	if !sort.StringsAreSorted(sorted) {
		t.Errorf("result not sorted: %v", sorted)
	}

	// The input slice is left untouched.
	if names[0] != "c" || names[1] != "a" || names[2] != "b" {
		t.Errorf("input mutated: %v", names)
	}
}
