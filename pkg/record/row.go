package record

import (
	"fmt"
	"sort"
)

// Ref points back at the source row a record was derived from.
type Ref struct {
	File string `json:"file,omitempty"`
	Row  int    `json:"row"`
}

func (r Ref) String() string {
	if r.File == "" {
		return fmt.Sprintf("row %d", r.Row)
	}
	return fmt.Sprintf("%s:%d", r.File, r.Row)
}

// SourceRow is one wide row of an EDC extract: one subject per collection event.
type SourceRow struct {
	File   string
	Index  int
	Raw    map[string]string
	Fields map[string]Value
}

// NewSourceRow wraps the raw header-keyed values of a row. Index is 1-based over data rows.
func NewSourceRow(file string, index int, raw map[string]string) *SourceRow {
	if raw == nil {
		raw = make(map[string]string)
	}
	return &SourceRow{
		File:   file,
		Index:  index,
		Raw:    raw,
		Fields: make(map[string]Value, len(raw)),
	}
}

// Type populates Fields using the declared column kinds. Undeclared columns are strings.
func (r *SourceRow) Type(kinds map[string]Kind) {
	for col, raw := range r.Raw {
		kind, ok := kinds[col]
		if !ok {
			kind = KindString
		}
		r.Fields[col] = Parse(kind, raw)
	}
}

// Get returns the typed value of a column. Columns absent from the row are Null.
func (r *SourceRow) Get(col string) Value {
	if v, ok := r.Fields[col]; ok {
		return v
	}
	raw, ok := r.Raw[col]
	if !ok {
		return Value{Kind: KindString, Null: true}
	}
	return Parse(KindString, raw)
}

// Columns returns the row's column names in sorted order.
func (r *SourceRow) Columns() []string {
	cols := make([]string, 0, len(r.Raw))
	for c := range r.Raw {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (r *SourceRow) Ref() Ref {
	return Ref{File: r.File, Row: r.Index}
}
