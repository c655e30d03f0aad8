package models

import (
	"cmp"
	"slices"
	"strings"
)

func compareLocation(a, b Violation) int {
	if c := strings.Compare(a.FilePath, b.FilePath); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Column, b.Column)
}

// CompareCanonical orders violations by file, line, column, rule kind and ID.
// Every report uses this order regardless of how results were produced.
func CompareCanonical(a, b Violation) int {
	if c := compareLocation(a, b); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.RuleKind), string(b.RuleKind)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortCanonical sorts vs in place into canonical order.
func SortCanonical(vs []Violation) {
	slices.SortStableFunc(vs, CompareCanonical)
}

// IsCanonical reports whether vs is in canonical order.
func IsCanonical(vs []Violation) bool {
	return slices.IsSortedFunc(vs, CompareCanonical)
}

// TopN returns the n most serious violations, most serious first. Ties keep
// canonical order.
func TopN(vs []Violation, n int) []Violation {
	out := slices.Clone(vs)
	slices.SortStableFunc(out, func(a, b Violation) int {
		if c := cmp.Compare(a.Severity.Rank(), b.Severity.Rank()); c != 0 {
			return c
		}
		return CompareCanonical(a, b)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
