package grading

import "strings"

// normalize casefolds and trims surrounding whitespace. Interior whitespace
// is collapsed so "New  York" and "new york" compare equal.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
