package terminology

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Status classifies the outcome of a terminology lookup.
type Status int

const (
	Empty Status = iota
	Matched
	SponsorDefined
	NonConformant
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case Matched:
		return "matched"
	case SponsorDefined:
		return "sponsor_defined"
	case NonConformant:
		return "non_conformant"
	}
	return "unknown"
}

// Result is the outcome of mapping one value. For NonConformant results Value is empty
// and Original keeps what was collected; the value is never substituted.
type Result struct {
	Codelist string
	Value    string
	Original string
	Status   Status
}

// Err returns a *NonConformantValue for non-conformant results and nil otherwise.
func (r Result) Err() error {
	if r.Status != NonConformant {
		return nil
	}
	return &NonConformantValue{Codelist: r.Codelist, Value: r.Original}
}

// NonConformantValue marks a value outside a non-extensible codelist. It is reported as a
// finding downstream, not treated as a transform failure.
type NonConformantValue struct {
	Codelist string
	Value    string
}

func (e *NonConformantValue) Error() string {
	return fmt.Sprintf("value %q is not in codelist %s", e.Value, e.Codelist)
}

// Registry holds codelists by id. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	lists map[string]*Codelist
}

func NewRegistry() *Registry {
	return &Registry{lists: make(map[string]*Codelist)}
}

// Add indexes and registers a codelist, replacing any list with the same id.
func (r *Registry) Add(cl *Codelist) error {
	if cl == nil || cl.ID == "" {
		return fmt.Errorf("codelist id is required")
	}
	if err := cl.build(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[cl.ID] = cl
	return nil
}

// Merge registers every codelist of other, overriding lists with the same id.
func (r *Registry) Merge(other *Registry) error {
	if other == nil {
		return nil
	}
	other.mu.RLock()
	lists := make([]*Codelist, 0, len(other.lists))
	for _, cl := range other.lists {
		lists = append(lists, cl)
	}
	other.mu.RUnlock()

	for _, cl := range lists {
		if err := r.Add(cl); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Get(id string) (*Codelist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cl, ok := r.lists[id]
	return cl, ok
}

// Has reports whether a codelist is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns the registered codelist ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.lists))
	for id := range r.lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Map resolves value against the codelist. Unmapped values on an extensible codelist pass
// through upper-cased as sponsor-defined terms; on a non-extensible codelist they come back
// NonConformant. The error is reserved for an unknown codelist id.
func (r *Registry) Map(id, value string) (Result, error) {
	cl, ok := r.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("unknown codelist %q", id)
	}

	res := Result{Codelist: id, Original: value}
	if strings.TrimSpace(value) == "" {
		res.Status = Empty
		return res, nil
	}

	if v, ok := cl.Lookup(value); ok {
		res.Value = v
		res.Status = Matched
		return res, nil
	}

	if cl.Extensible {
		res.Value = sourceKey(value)
		res.Status = SponsorDefined
		return res, nil
	}

	res.Status = NonConformant
	return res, nil
}

// Contains reports whether value is a submission value of the codelist.
func (r *Registry) Contains(id, value string) (bool, error) {
	cl, ok := r.Get(id)
	if !ok {
		return false, fmt.Errorf("unknown codelist %q", id)
	}
	return cl.Contains(value), nil
}
