package excel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	xlsx "github.com/tealeg/xlsx"
	"github.com/user/sdtmflow/pkg/record"
)

// XLSXSource reads one EDC form export from an .xlsx workbook. The header row names the
// columns; every later non-blank row becomes a SourceRow. .xls (BIFF) workbooks are not
// supported and must be converted upstream.
type XLSXSource struct {
	filePath  string
	sheet     string
	headerRow int

	rows    [][]string
	headers []string
	pos     int
	index   int
	loaded  bool
}

// NewXLSXSource creates a source over the named sheet, or the first sheet when sheet is empty.
// headerRow is 1-based; zero means the first row.
func NewXLSXSource(filePath, sheet string, headerRow int) *XLSXSource {
	if headerRow <= 0 {
		headerRow = 1
	}
	return &XLSXSource{filePath: filePath, sheet: sheet, headerRow: headerRow}
}

// IsWorkbook reports whether path names a workbook this source can read.
func IsWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func (s *XLSXSource) load() error {
	wb, err := xlsx.OpenFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to open xlsx file: %w", err)
	}
	sh, err := s.pickSheet(wb)
	if err != nil {
		return err
	}

	s.loaded = true
	for i, row := range sh.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
		}
		switch {
		case i+1 < s.headerRow:
		case i+1 == s.headerRow:
			s.headers = normalizeHeaders(cells)
		default:
			s.rows = append(s.rows, cells)
		}
	}
	return nil
}

func (s *XLSXSource) pickSheet(wb *xlsx.File) (*xlsx.Sheet, error) {
	if s.sheet != "" {
		sh, ok := wb.Sheet[s.sheet]
		if !ok {
			return nil, fmt.Errorf("sheet not found: %s", s.sheet)
		}
		return sh, nil
	}
	if len(wb.Sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	return wb.Sheets[0], nil
}

// Read returns the next data row, or (nil, nil) once the sheet is exhausted.
func (s *XLSXSource) Read(ctx context.Context) (*record.SourceRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.loaded {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	for s.pos < len(s.rows) {
		cells := s.rows[s.pos]
		s.pos++
		if blank(cells) {
			continue
		}
		s.index++
		raw := make(map[string]string, len(cells))
		for i, v := range cells {
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(s.headers) {
				key = s.headers[i]
			}
			raw[key] = v
		}
		return record.NewSourceRow(filepath.Base(s.filePath), s.index, raw), nil
	}
	return nil, nil
}

// Headers returns the header row once the first Read has happened.
func (s *XLSXSource) Headers() []string {
	return s.headers
}

func (s *XLSXSource) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.filePath); err != nil {
		return fmt.Errorf("xlsx file not found or inaccessible: %w", err)
	}
	return nil
}

func (s *XLSXSource) Close() error {
	s.rows = nil
	return nil
}

// normalizeHeaders trims header cells and names empty ones by position. Case and punctuation
// are kept so mapping specs can use the same column names as for CSV exports.
func normalizeHeaders(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = c
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
