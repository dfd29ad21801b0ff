package sundaeslide

import "strings"

// NormalizeKey derives the coordinator key for a human readable title:
// lower-cased, with every run of whitespace collapsed to a single hyphen.
func NormalizeKey(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}
