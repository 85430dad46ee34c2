package subject

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/user/sdtmflow/pkg/record"
	"golang.org/x/sync/errgroup"
)

// Separator joins the study, site and subject components of USUBJID.
const Separator = "-"

// DeriveID builds the cross-domain unique subject identifier. Empty components are skipped so a
// study without sites yields STUDY-SUBJ.
func DeriveID(study, site, subject string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{study, site, subject} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, Separator)
}

// SiteFromCompound extracts the site number from a compound EDC field such as
// "US/Boston-408" or "Site 408" by taking its final delimited segment.
func SiteFromCompound(field string) string {
	field = strings.TrimSpace(field)
	idx := strings.LastIndexAny(field, "-/_. ")
	if idx < 0 {
		return field
	}
	return field[idx+1:]
}

// SortKey orders records within a subject: timestamp ascending, test code ascending, then each
// tie-break variable ascending. Remaining ties fall back to repetition and source row.
type SortKey struct {
	TieBreaks []string
}

func (k SortKey) less(a, b *record.Record) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.TestCode != b.TestCode {
		return a.TestCode < b.TestCode
	}
	for _, v := range k.TieBreaks {
		av, bv := a.Get(v), b.Get(v)
		if av != bv {
			return av < bv
		}
	}
	if a.Repeat != b.Repeat {
		return a.Repeat < b.Repeat
	}
	if a.Source.File != b.Source.File {
		return a.Source.File < b.Source.File
	}
	return a.Source.Row < b.Source.Row
}

// SequenceCollision reports two records of one subject that received the same sequence number.
// It means the sequencing step is broken and the whole batch must be rejected.
type SequenceCollision struct {
	Domain  string
	Subject string
	Seq     int
}

func (e *SequenceCollision) Error() string {
	return fmt.Sprintf("domain %s: subject %s has duplicate sequence number %d", e.Domain, e.Subject, e.Seq)
}

// AssignSequences sorts records within each subject group and numbers them 1..N. The slice is
// reordered in place: subjects ascending, records in sequence order. Subject groups are sorted
// concurrently with at most workers goroutines (0 means unbounded).
func AssignSequences(ctx context.Context, records []*record.Record, key SortKey, workers int) error {
	groups := make(map[string][]*record.Record)
	for _, r := range records {
		groups[r.Subject] = append(groups[r.Subject], r)
	}
	subjects := make([]string, 0, len(groups))
	for s := range groups {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, s := range subjects {
		group := groups[s]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sort.SliceStable(group, func(i, j int) bool { return key.less(group[i], group[j]) })
			for i, r := range group {
				r.Seq = i + 1
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	i := 0
	for _, s := range subjects {
		for _, r := range groups[s] {
			records[i] = r
			i++
		}
	}
	return Verify(records)
}

// Verify checks that every subject's sequence numbers are exactly 1..N without repeats.
func Verify(records []*record.Record) error {
	seen := make(map[string]map[int]bool)
	for _, r := range records {
		m, ok := seen[r.Subject]
		if !ok {
			m = make(map[int]bool)
			seen[r.Subject] = m
		}
		if m[r.Seq] {
			return &SequenceCollision{Domain: r.Domain, Subject: r.Subject, Seq: r.Seq}
		}
		m[r.Seq] = true
	}
	for subj, m := range seen {
		for n := 1; n <= len(m); n++ {
			if !m[n] {
				return fmt.Errorf("domain sequence gap: subject %s is missing sequence %d", subj, n)
			}
		}
	}
	return nil
}
