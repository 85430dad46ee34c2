package mapping

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed specs/*.yaml
var builtinSpecs embed.FS

// ErrUnknownDomain is returned when no built-in specification exists for a domain.
var ErrUnknownDomain = errors.New("unknown domain")

// LoadFile reads a YAML or JSON domain specification and checks it against the schema.
func LoadFile(path string) (*DomainSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping spec %s: %w", path, err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Parse decodes a specification document. YAML is a superset of JSON so both are accepted.
func Parse(data []byte) (*DomainSpec, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var spec DomainSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse mapping spec: %w", err)
	}
	applyDefaults(&spec)
	return &spec, nil
}

func applyDefaults(s *DomainSpec) {
	s.Domain = strings.ToUpper(strings.TrimSpace(s.Domain))
	if s.Class == "" {
		if len(s.Measurements) > 0 {
			s.Class = ClassFindings
		} else {
			s.Class = ClassEvents
		}
	}
	if s.Timestamp == "" {
		if dtc := s.Domain + "DTC"; s.Declares(dtc) {
			s.Timestamp = dtc
		} else if stdtc := s.Domain + "STDTC"; s.Declares(stdtc) {
			s.Timestamp = stdtc
		}
	}
	for i := range s.Variables {
		v := &s.Variables[i]
		if v.Core == "" {
			v.Core = Permissible
		}
		if v.Transform == "" {
			switch {
			case v.Codelist != "":
				v.Transform = CT
			case v.Value != "":
				v.Transform = Constant
			default:
				v.Transform = Identity
			}
		}
		if v.Transform == Concat && v.Separator == "" {
			v.Separator = " "
		}
	}
}

// Marshal serializes a specification to YAML.
func Marshal(s *DomainSpec) ([]byte, error) {
	return yaml.Marshal(s)
}

// Builtin returns the bundled specification for a domain (DM, VS, AE).
func Builtin(domain string) (*DomainSpec, error) {
	name := "specs/" + strings.ToLower(domain) + ".yaml"
	data, err := builtinSpecs.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return Parse(data)
}

// BuiltinDomains lists the domains with a bundled specification.
func BuiltinDomains() []string {
	entries, err := fs.ReadDir(builtinSpecs, "specs")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.ToUpper(strings.TrimSuffix(e.Name(), path.Ext(e.Name()))))
	}
	sort.Strings(out)
	return out
}

// Resolve loads a spec from a file path, or falls back to the built-in spec when ref names a domain.
func Resolve(ref string) (*DomainSpec, error) {
	if _, err := os.Stat(ref); err == nil {
		return LoadFile(ref)
	}
	return Builtin(ref)
}
