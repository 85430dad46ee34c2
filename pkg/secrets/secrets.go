package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Prefix marks a configuration value that names a secret instead of holding it. The full form is
// "secret:<key>" or "secret:<key>#<field>"; the field selects one member of a structured secret.
const Prefix = "secret:"

var (
	// ErrNotFound is returned when no manager holds the requested key or field.
	ErrNotFound = errors.New("secret not found")
	// ErrMalformed marks a reference with an empty key or field.
	ErrMalformed = errors.New("malformed secret reference")
)

// Reference names one secret, optionally one field of it.
type Reference struct {
	Key   string
	Field string
}

func (r Reference) String() string {
	if r.Field == "" {
		return r.Key
	}
	return r.Key + "#" + r.Field
}

// IsReference reports whether value names a secret.
func IsReference(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// ParseReference splits a "secret:" value. ok is false for plain values.
func ParseReference(value string) (ref Reference, ok bool, err error) {
	if !IsReference(value) {
		return Reference{}, false, nil
	}
	body := strings.TrimPrefix(value, Prefix)
	key, field, hasField := strings.Cut(body, "#")
	ref = Reference{Key: strings.TrimSpace(key), Field: strings.TrimSpace(field)}
	if ref.Key == "" || (hasField && ref.Field == "") {
		return ref, true, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	return ref, true, nil
}

// Manager looks up secrets in one backend.
type Manager interface {
	Get(ctx context.Context, ref Reference) (string, error)
}

// EnvManager resolves secrets from environment variables, trying Prefix+key before the bare key.
type EnvManager struct {
	Prefix string
}

func (m *EnvManager) Get(ctx context.Context, ref Reference) (string, error) {
	val := os.Getenv(m.Prefix + ref.Key)
	if val == "" {
		val = os.Getenv(ref.Key)
	}
	if val == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
	}
	return field(val, ref)
}

// CombinedManager tries multiple secret managers in order.
type CombinedManager struct {
	Managers []Manager
}

func (m *CombinedManager) Get(ctx context.Context, ref Reference) (string, error) {
	var errs []error
	for _, mgr := range m.Managers {
		val, err := mgr.Get(ctx, ref)
		if err == nil && val != "" {
			return val, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return "", errors.Join(errs...)
}

// field picks ref.Field out of a JSON secret, the layout AWS and Azure use for multi-value
// secrets. Without a field the raw value is returned.
func field(raw string, ref Reference) (string, error) {
	if ref.Field == "" {
		return raw, nil
	}
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("secret %s is not JSON, cannot select field %s", ref.Key, ref.Field)
	}
	res := gjson.Get(raw, gjson.Escape(ref.Field))
	if !res.Exists() {
		return "", fmt.Errorf("%w: field %s in %s", ErrNotFound, ref.Field, ref.Key)
	}
	return res.String(), nil
}

// ResolveSecret returns value unchanged unless it is a reference, in which case it is looked up in
// mgr. An unresolvable reference is an error, never passed through as a credential.
func ResolveSecret(ctx context.Context, mgr Manager, value string) (string, error) {
	ref, ok, err := ParseReference(value)
	if err != nil || !ok {
		return value, err
	}
	if mgr == nil {
		return "", fmt.Errorf("no secret manager configured for %s", ref)
	}
	val, err := mgr.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	if val == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return val, nil
}
