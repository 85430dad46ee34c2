package record

import "sort"

// Dataset is one SDTM domain table.
type Dataset struct {
	Domain  string
	Columns []string
	Records []*Record
}

func NewDataset(domain string, columns []string) *Dataset {
	return &Dataset{Domain: domain, Columns: columns}
}

func (d *Dataset) Append(recs ...*Record) {
	d.Records = append(d.Records, recs...)
}

func (d *Dataset) Len() int {
	return len(d.Records)
}

// HasColumn reports whether the dataset declares the variable.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Subjects returns the distinct subject identifiers in sorted order.
func (d *Dataset) Subjects() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range d.Records {
		if r.Subject != "" && !seen[r.Subject] {
			seen[r.Subject] = true
			out = append(out, r.Subject)
		}
	}
	sort.Strings(out)
	return out
}

// BySubject groups records by subject identifier, preserving record order within a group.
func (d *Dataset) BySubject() map[string][]*Record {
	groups := make(map[string][]*Record)
	for _, r := range d.Records {
		groups[r.Subject] = append(groups[r.Subject], r)
	}
	return groups
}
