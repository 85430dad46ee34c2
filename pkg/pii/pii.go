package pii

import (
	"regexp"
	"sort"
)

// Scanner finds one kind of personal identifier in free text.
type Scanner struct {
	Name    string
	Pattern *regexp.Regexp
	Mask    string
}

// DefaultScanners covers the identifiers that turn up in investigator comments and reported
// terms. Order matters for masking: card and SSN patterns run before the looser phone pattern.
var DefaultScanners = []Scanner{
	{
		Name:    "Credit Card",
		Pattern: regexp.MustCompile(`\b(?:4[0-9]{3}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|5[1-5][0-9]{2}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}|3[47][0-9]{2}[- ]?[0-9]{6}[- ]?[0-9]{5})\b`),
		Mask:    "****-****-****-****",
	},
	{
		Name:    "SSN",
		Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Mask:    "***-**-****",
	},
	{
		Name:    "Email",
		Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		Mask:    "****@****.***",
	},
	{
		Name:    "Phone",
		Pattern: regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`),
		Mask:    "(***) ***-****",
	},
}

type Engine struct {
	Scanners []Scanner
}

func NewEngine(scanners ...Scanner) *Engine {
	if len(scanners) == 0 {
		return &Engine{Scanners: DefaultScanners}
	}
	return &Engine{Scanners: scanners}
}

// Mask replaces every detected identifier with its scanner's mask.
func (e *Engine) Mask(input string) string {
	res := input
	for _, s := range e.Scanners {
		res = s.Pattern.ReplaceAllString(res, s.Mask)
	}
	return res
}

// Discover returns the sorted names of the identifier kinds present in input.
func (e *Engine) Discover(input string) []string {
	var found []string
	for _, s := range e.Scanners {
		if s.Pattern.MatchString(input) {
			found = append(found, s.Name)
		}
	}
	sort.Strings(found)
	return found
}
