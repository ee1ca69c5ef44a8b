// Package ids compares and generates card identifiers.
//
// Ids are strings. Numeric-looking ids order numerically because both sides
// are left-padded with zeros before a plain string comparison.
package ids

import (
	"math/big"
	"slices"
	"strings"
)

// Compare returns -1, 0 or 1 comparing a and b after zero-padding both to the
// same length.
func Compare(a, b string) int {
	n := max(len(a), len(b))
	return strings.Compare(pad(a, n), pad(b, n))
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// Normalize strips leading zeros, keeping at least one character.
func Normalize(id string) string {
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" && id != "" {
		return "0"
	}
	return trimmed
}

// Max returns the greatest id by Compare. ok is false when ids is empty.
func Max(ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}
	highest := ids[0]
	for _, id := range ids[1:] {
		if Compare(id, highest) > 0 {
			highest = id
		}
	}
	return highest, true
}

// Next returns the id following current. A nil current yields "1", an integer
// is incremented, and anything else yields "1" followed by len(current) zeros,
// which always sorts after it.
func Next(current *string) string {
	if current == nil {
		return "1"
	}
	if n, ok := new(big.Int).SetString(*current, 10); ok {
		return n.Add(n, big.NewInt(1)).String()
	}
	return "1" + strings.Repeat("0", len(*current))
}

// NextAfter is Next applied to the maximum of existing.
func NextAfter(existing []string) string {
	m, ok := Max(existing)
	if !ok {
		return Next(nil)
	}
	return Next(&m)
}

// Sort orders ids in place by Compare.
func Sort(ids []string) {
	slices.SortStableFunc(ids, Compare)
}
