package normalize

import "strings"

// Canonical trims a value and upper-cases it when it is destined for a controlled-terminology
// variable. Free text is returned as collected apart from surrounding whitespace.
func Canonical(value string, controlled bool) string {
	v := strings.TrimSpace(value)
	if controlled {
		return strings.ToUpper(v)
	}
	return v
}
