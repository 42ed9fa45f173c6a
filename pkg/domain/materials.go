package domain

import "strings"

// MaterialKey normalizes a supporting material name for deduplication:
// surrounding and repeated whitespace is collapsed and case is folded.
func MaterialKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// MaterialName tidies whitespace in a display name without changing case.
func MaterialName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
