package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/user/sdtmflow/pkg/validate"
)

// Run groups the per-domain reports of one pipeline execution.
type Run struct {
	ID        string             `json:"run_id"`
	StudyID   string             `json:"study_id"`
	Started   time.Time          `json:"started"`
	Finished  time.Time          `json:"finished"`
	Threshold float64            `json:"threshold"`
	Domains   []*validate.Report `json:"domains"`
	// Errors holds domains that failed before a report could be produced.
	Errors map[string]string `json:"errors,omitempty"`
}

// Ready reports whether every domain is submission-ready and none failed.
func (r *Run) Ready() bool {
	if len(r.Errors) > 0 || len(r.Domains) == 0 {
		return false
	}
	for _, d := range r.Domains {
		if !d.Ready {
			return false
		}
	}
	return true
}

// Score is the record-weighted mean of the domain scores.
func (r *Run) Score() float64 {
	var total, weight float64
	for _, d := range r.Domains {
		w := float64(d.Records)
		if w == 0 {
			w = 1
		}
		total += d.Score * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

// Counts sums finding counts across domains.
func (r *Run) Counts() map[string]int {
	out := make(map[string]int)
	for _, d := range r.Domains {
		for k, v := range d.Counts {
			out[k] += v
		}
	}
	return out
}

// Domain returns the report of one domain.
func (r *Run) Domain(name string) (*validate.Report, bool) {
	for _, d := range r.Domains {
		if d.Domain == name {
			return d, true
		}
	}
	return nil, false
}

// Sort orders domain reports by name so output is stable regardless of completion order.
func (r *Run) Sort() {
	sort.Slice(r.Domains, func(i, j int) bool { return r.Domains[i].Domain < r.Domains[j].Domain })
}

// WriteJSON renders a domain report as indented JSON.
func WriteJSON(w io.Writer, rep *validate.Report) error {
	return encode(w, rep)
}

// WriteRunJSON renders a whole run as indented JSON.
func WriteRunJSON(w io.Writer, run *Run) error {
	return encode(w, run)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// ReadRunJSON parses a run written by WriteRunJSON.
func ReadRunJSON(rd io.Reader) (*Run, error) {
	var run Run
	if err := json.NewDecoder(rd).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &run, nil
}
