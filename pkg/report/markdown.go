package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/validate"
)

// MaxListed caps the findings listed per domain in the Markdown summary.
const MaxListed = 25

// Markdown renders the compliance summary of a single domain.
func Markdown(rep *validate.Report) string {
	var b strings.Builder
	writeDomain(&b, rep, "#")
	return b.String()
}

// RunMarkdown renders the compliance summary of a whole run.
func RunMarkdown(run *Run) string {
	var b strings.Builder
	score := run.Score()
	fmt.Fprintf(&b, "# SDTM Compliance Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", run.Finished.Format(time.RFC1123))
	fmt.Fprintf(&b, "Study: %s\nRun: %s\n\n", run.StudyID, run.ID)

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Overall Score: %.2f%% (%s)\n", score, validate.Band(score))
	fmt.Fprintf(&b, "- Submission Ready: %s\n", yesNo(run.Ready()))
	fmt.Fprintf(&b, "- Threshold: %.2f%%\n", run.Threshold)
	counts := run.Counts()
	fmt.Fprintf(&b, "- Findings: %s\n\n", countLine(counts))

	b.WriteString("| Domain | Records | Subjects | Score | Status | Quality | Ready |\n")
	b.WriteString("|---|---:|---:|---:|---|---:|---|\n")
	for _, d := range run.Domains {
		fmt.Fprintf(&b, "| %s | %d | %d | %.2f | %s | %.2f | %s |\n",
			d.Domain, d.Records, d.Subjects, d.Score, d.Band(), d.QualityScore, yesNo(d.Ready))
	}
	failed := make([]string, 0, len(run.Errors))
	for domain := range run.Errors {
		failed = append(failed, domain)
	}
	sort.Strings(failed)
	for _, domain := range failed {
		fmt.Fprintf(&b, "| %s | - | - | - | FAILED | - | no |\n", domain)
	}
	b.WriteString("\n")

	if len(failed) > 0 {
		b.WriteString("## Failed Domains\n")
		for _, domain := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", domain, escape(run.Errors[domain]))
		}
		b.WriteString("\n")
	}

	for _, d := range run.Domains {
		writeDomain(&b, d, "##")
	}
	return b.String()
}

// WriteMarkdown writes the run summary.
func WriteMarkdown(w io.Writer, run *Run) error {
	_, err := io.WriteString(w, RunMarkdown(run))
	return err
}

func writeDomain(b *strings.Builder, rep *validate.Report, h string) {
	fmt.Fprintf(b, "%s Domain %s\n", h, rep.Domain)
	if h == "#" {
		fmt.Fprintf(b, "Generated: %s\n\n", rep.Generated.Format(time.RFC1123))
	}
	fmt.Fprintf(b, "- Compliance Score: %.2f%%\n", rep.Score)
	fmt.Fprintf(b, "- Integrity Status: %s\n", rep.Band())
	fmt.Fprintf(b, "- Submission Ready: %s (threshold %.2f%%, %d critical)\n",
		yesNo(rep.Ready), rep.Threshold, rep.Count(validate.Critical))
	fmt.Fprintf(b, "- Data Quality Score: %.2f%% (%s)\n", rep.QualityScore, validate.Band(rep.QualityScore))
	fmt.Fprintf(b, "- Records: %d across %d subjects\n", rep.Records, rep.Subjects)
	if len(rep.Completeness) > 0 {
		var parts []string
		for _, tier := range []mapping.Tier{mapping.Required, mapping.Expected, mapping.Permissible} {
			if v, ok := rep.Completeness[tier]; ok {
				parts = append(parts, fmt.Sprintf("%s %.1f%%", tier, v*100))
			}
		}
		fmt.Fprintf(b, "- Completeness: %s\n", strings.Join(parts, ", "))
	}
	b.WriteString("\n")

	fmt.Fprintf(b, "%s# Layers\n", h)
	b.WriteString("| Layer | Weight | Checked | Score | Findings |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, l := range rep.Layers {
		score := fmt.Sprintf("%.2f", l.Score)
		if l.Skipped {
			score = "skipped"
		}
		fmt.Fprintf(b, "| %s | %.2f | %d | %s | %d |\n", l.Layer, l.Weight, l.Checked, score, l.Findings)
	}
	b.WriteString("\n")

	listed := rep.Filter(validate.Warning)
	if len(listed) == 0 {
		return
	}
	fmt.Fprintf(b, "%s# Findings\n", h)
	for i, f := range listed {
		if i == MaxListed {
			fmt.Fprintf(b, "- ... %d more\n", len(listed)-MaxListed)
			break
		}
		fmt.Fprintf(b, "- %s\n", escape(f.String()))
	}
	b.WriteString("\n")
}

func countLine(counts map[string]int) string {
	var parts []string
	for _, s := range []validate.Severity{validate.Critical, validate.Error, validate.Warning, validate.Info} {
		parts = append(parts, fmt.Sprintf("%d %s", counts[s.String()], s))
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
