package normalize

import "fmt"

// NormalizationError reports a raw value that is malformed for its declared kind.
type NormalizationError struct {
	Kind   string
	Value  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s %q: %s", e.Kind, e.Value, e.Reason)
}

func newError(kind, value, reason string) *NormalizationError {
	return &NormalizationError{Kind: kind, Value: value, Reason: reason}
}
