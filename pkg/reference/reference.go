package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/user/sdtmflow/pkg/record"
)

// Subject is the demographics view other domains join against.
type Subject struct {
	USUBJID string
	SiteID  string
	RFSTDTC string
	RFENDTC string
}

// Set is a read-only demographics index keyed by USUBJID. Build it completely before sharing.
type Set struct {
	subjects map[string]Subject
}

func NewSet(subjects ...Subject) *Set {
	s := &Set{subjects: make(map[string]Subject, len(subjects))}
	for _, subj := range subjects {
		s.subjects[subj.USUBJID] = subj
	}
	return s
}

func (s *Set) Get(usubjid string) (Subject, bool) {
	if s == nil {
		return Subject{}, false
	}
	subj, ok := s.subjects[usubjid]
	return subj, ok
}

func (s *Set) Has(usubjid string) bool {
	_, ok := s.Get(usubjid)
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.subjects)
}

// IDs returns the subject identifiers in sorted order.
func (s *Set) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.subjects))
	for id := range s.subjects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReferenceStart returns the subject's RFSTDTC when the subject is known and the date recorded.
func (s *Set) ReferenceStart(usubjid string) (string, bool) {
	subj, ok := s.Get(usubjid)
	if !ok || subj.RFSTDTC == "" {
		return "", false
	}
	return subj.RFSTDTC, true
}

// FromDataset indexes a produced DM dataset.
func FromDataset(ds *record.Dataset) *Set {
	s := NewSet()
	if ds == nil {
		return s
	}
	for _, r := range ds.Records {
		s.subjects[r.Subject] = Subject{
			USUBJID: r.Subject,
			SiteID:  r.Get("SITEID"),
			RFSTDTC: r.Get("RFSTDTC"),
			RFENDTC: r.Get("RFENDTC"),
		}
	}
	return s
}

// LoadCSV reads a DM-shaped delimited file. Columns are found by header name; only USUBJID is
// mandatory.
func LoadCSV(rd io.Reader) (*Set, error) {
	reader := csv.NewReader(rd)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read demographics header: %w", err)
	}
	idx := func(name string) int {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	subjCol, siteCol, startCol, endCol := idx("USUBJID"), idx("SITEID"), idx("RFSTDTC"), idx("RFENDTC")
	if subjCol == -1 {
		return nil, fmt.Errorf("demographics file has no USUBJID column")
	}
	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	s := NewSet()
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("demographics line %d: %w", line, err)
		}
		id := cell(row, subjCol)
		if id == "" {
			continue
		}
		s.subjects[id] = Subject{
			USUBJID: id,
			SiteID:  cell(row, siteCol),
			RFSTDTC: cell(row, startCol),
			RFENDTC: cell(row, endCol),
		}
	}
	return s, nil
}

// ReferentialGap is a cross-domain join miss. It is reported as a warning, never a failure.
type ReferentialGap struct {
	Domain   string
	Subject  string
	Variable string
	Reason   string
}

func (e *ReferentialGap) Error() string {
	return fmt.Sprintf("domain %s: %s for subject %s: %s", e.Domain, e.Variable, e.Subject, e.Reason)
}
