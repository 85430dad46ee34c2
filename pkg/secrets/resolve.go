package secrets

import (
	"context"
	"errors"
	"fmt"
)

// Field is one configuration value that may hold a reference. Name is the config path reported
// in errors, e.g. "history.conn".
type Field struct {
	Name  string
	Value *string
}

// Referenced keeps the fields whose value is a reference.
func Referenced(fields ...Field) []Field {
	var out []Field
	for _, f := range fields {
		if IsReference(*f.Value) {
			out = append(out, f)
		}
	}
	return out
}

// Check reports malformed references without contacting any backend.
func Check(fields ...Field) error {
	var errs []error
	for _, f := range fields {
		if _, _, err := ParseReference(*f.Value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Resolve replaces every referenced field in place. Fields that fail keep their reference and
// are reported by name; the others are still resolved.
func Resolve(ctx context.Context, mgr Manager, fields ...Field) error {
	var errs []error
	for _, f := range fields {
		val, err := ResolveSecret(ctx, mgr, *f.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		*f.Value = val
	}
	return errors.Join(errs...)
}
