package normalize

import (
	"sort"
	"strings"
)

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Emails normalizes every address, drops blanks and duplicates and returns
// the result sorted, so equal participant sets always compare equal.
func Emails(in ...string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		n := Email(e)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PairKey returns the key identifying the 1:1 conversation between a and b,
// independent of argument order.
func PairKey(a, b string) string {
	return strings.Join(Emails(a, b), "|")
}
