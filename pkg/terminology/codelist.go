package terminology

import (
	"fmt"
	"sort"
	"strings"
)

// Term is one permitted submission value and the source spellings that resolve to it.
type Term struct {
	Value   string   `yaml:"value" json:"value"`
	Decode  string   `yaml:"decode,omitempty" json:"decode,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Codelist is a closed (non-extensible) or open (extensible) set of permitted values.
type Codelist struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	Extensible bool   `yaml:"extensible" json:"extensible"`
	Terms      []Term `yaml:"terms" json:"terms"`

	index map[string]string
}

func sourceKey(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// build indexes submission values and aliases by their upper-cased spelling.
func (c *Codelist) build() error {
	c.index = make(map[string]string, len(c.Terms)*2)
	for _, t := range c.Terms {
		if t.Value == "" {
			return fmt.Errorf("codelist %s: term with empty value", c.ID)
		}
		keys := append([]string{t.Value}, t.Aliases...)
		for _, k := range keys {
			key := sourceKey(k)
			if prev, ok := c.index[key]; ok && prev != t.Value {
				return fmt.Errorf("codelist %s: %q maps to both %q and %q", c.ID, k, prev, t.Value)
			}
			c.index[key] = t.Value
		}
	}
	return nil
}

// Lookup resolves a source value to its submission value.
func (c *Codelist) Lookup(value string) (string, bool) {
	if c.index == nil {
		if err := c.build(); err != nil {
			return "", false
		}
	}
	v, ok := c.index[sourceKey(value)]
	return v, ok
}

// Contains reports whether value is exactly one of the submission values.
func (c *Codelist) Contains(value string) bool {
	for _, t := range c.Terms {
		if t.Value == value {
			return true
		}
	}
	return false
}

// Values returns the submission values in sorted order.
func (c *Codelist) Values() []string {
	out := make([]string, 0, len(c.Terms))
	for _, t := range c.Terms {
		out = append(out, t.Value)
	}
	sort.Strings(out)
	return out
}
