package transform

import (
	"errors"
	"fmt"

	"github.com/user/sdtmflow/pkg/record"
)

// ErrMissingSpec aborts a run that has no mapping specification for a domain.
var ErrMissingSpec = errors.New("missing mapping specification")

// RequiredFieldMissing drops a single record whose Required variable is empty or failed to
// normalize. The rest of the batch continues.
type RequiredFieldMissing struct {
	Domain   string
	Variable string
	Source   record.Ref
	Cause    error
}

func (e *RequiredFieldMissing) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("domain %s: required variable %s at %s: %v", e.Domain, e.Variable, e.Source, e.Cause)
	}
	return fmt.Sprintf("domain %s: required variable %s is empty at %s", e.Domain, e.Variable, e.Source)
}

func (e *RequiredFieldMissing) Unwrap() error {
	return e.Cause
}

// Warning codes.
const (
	WarnNormalization  = "normalization"
	WarnNonConformant  = "nonconformant"
	WarnUnitUnknown    = "unit_unrecognized"
	WarnReferentialGap = "referential_gap"
)

// Warning is a degraded field or other non-fatal transform problem. It always carries the
// originating source row.
type Warning struct {
	Code     string     `json:"code"`
	Source   record.Ref `json:"source"`
	Subject  string     `json:"subject,omitempty"`
	Variable string     `json:"variable,omitempty"`
	Message  string     `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s %s: %s", w.Source, w.Code, w.Variable, w.Message)
}
