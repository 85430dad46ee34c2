package validate

import (
	"sort"
	"time"

	"github.com/user/sdtmflow/pkg/mapping"
)

// LayerResult is the outcome of one layer.
type LayerResult struct {
	Layer    Layer          `json:"layer"`
	Score    float64        `json:"score"`
	Weight   float64        `json:"weight"`
	Checked  int            `json:"checked"`
	Counts   map[string]int `json:"counts"`
	Skipped  bool           `json:"skipped,omitempty"`
	Findings int            `json:"findings"`
}

// Report is the compliance summary of one dataset.
type Report struct {
	Domain       string                   `json:"domain"`
	Generated    time.Time                `json:"generated"`
	Records      int                      `json:"records"`
	Subjects     int                      `json:"subjects"`
	Score        float64                  `json:"score"`
	QualityScore float64                  `json:"quality_score"`
	Threshold    float64                  `json:"threshold"`
	Ready        bool                     `json:"submission_ready"`
	Counts       map[string]int           `json:"counts"`
	Completeness map[mapping.Tier]float64 `json:"completeness,omitempty"`
	Layers       []LayerResult            `json:"layers"`
	Findings     []Finding                `json:"findings"`
}

// Count returns the number of findings of a severity.
func (r *Report) Count(s Severity) int {
	return r.Counts[s.String()]
}

// Layer returns the result of one layer.
func (r *Report) Layer(l Layer) (LayerResult, bool) {
	for _, lr := range r.Layers {
		if lr.Layer == l {
			return lr, true
		}
	}
	return LayerResult{}, false
}

// Band classifies the overall score.
func (r *Report) Band() string {
	return Band(r.Score)
}

// Filter returns the findings at or above a severity.
func (r *Report) Filter(min Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// Add appends findings raised outside the validator, such as records the transform had to skip,
// and recomputes the scores.
func (r *Report) Add(findings ...Finding) {
	r.Findings = append(r.Findings, findings...)
	r.rescore()
}

func (r *Report) rescore() {
	byLayer := make(map[Layer][]Finding)
	for _, f := range r.Findings {
		byLayer[f.Layer] = append(byLayer[f.Layer], f)
	}
	scores := make(map[Layer]float64)
	for i := range r.Layers {
		lr := &r.Layers[i]
		lr.Score = LayerScore(byLayer[lr.Layer], lr.Checked)
		lr.Findings = len(byLayer[lr.Layer])
		lr.Counts = countBySeverity(byLayer[lr.Layer])
		scores[lr.Layer] = lr.Score
	}
	r.Counts = countBySeverity(r.Findings)
	r.Score = Overall(scores)
	if q, ok := scores[Quality]; ok {
		r.QualityScore = qualityScore(q, r.Completeness)
	}
	r.Ready = Ready(r.Score, r.Threshold, r.Count(Critical))
	sortFindings(r.Findings)
}

func countBySeverity(findings []Finding) map[string]int {
	counts := make(map[string]int, len(severityNames))
	for _, s := range Severities {
		counts[s.String()] = 0
	}
	for _, f := range findings {
		counts[f.Severity.String()]++
	}
	return counts
}

// qualityScore scales the finding-based quality score by mean completeness of the Required and
// Expected tiers.
func qualityScore(findingScore float64, completeness map[mapping.Tier]float64) float64 {
	n, sum := 0, 0.0
	for _, t := range []mapping.Tier{mapping.Required, mapping.Expected} {
		if c, ok := completeness[t]; ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return findingScore
	}
	return findingScore * sum / float64(n)
}

func sortFindings(findings []Finding) {
	order := make(map[Layer]int, len(Layers))
	for i, l := range Layers {
		order[l] = i
	}
	first := func(f Finding) RecordRef {
		if len(f.Records) == 0 {
			return RecordRef{}
		}
		return f.Records[0]
	}
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if order[a.Layer] != order[b.Layer] {
			return order[a.Layer] < order[b.Layer]
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		ra, rb := first(a), first(b)
		if ra.Subject != rb.Subject {
			return ra.Subject < rb.Subject
		}
		return ra.Seq < rb.Seq
	})
}
