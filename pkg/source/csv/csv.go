package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/pkg/record"
)

// CSVSource implements the sdtmflow.Source interface for one EDC form export.
type CSVSource struct {
	filePath  string
	delimiter rune
	file      *os.File
	reader    *csv.Reader
	headers   []string
	index     int
	finished  bool
}

// NewCSVSource creates a new CSVSource. The first line must be a header.
func NewCSVSource(filePath string, delimiter rune) *CSVSource {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVSource{
		filePath:  filePath,
		delimiter: delimiter,
	}
}

func (s *CSVSource) init() error {
	file, err := os.Open(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	s.file = file
	s.reader = newReader(file, s.delimiter)

	headers, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			s.finished = true
			return nil
		}
		return fmt.Errorf("failed to read csv header: %w", err)
	}
	s.headers = cleanHeaders(headers)
	return nil
}

// Read returns the next data row, or (nil, nil) once the file is exhausted.
func (s *CSVSource) Read(ctx context.Context) (*record.SourceRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.finished {
		return nil, nil
	}
	if s.reader == nil {
		if err := s.init(); err != nil {
			return nil, err
		}
		if s.finished {
			return nil, nil
		}
	}

	for {
		fields, err := s.reader.Read()
		if err == io.EOF {
			s.finished = true
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record %d: %w", s.index+1, err)
		}
		if blank(fields) {
			continue
		}
		s.index++
		return record.NewSourceRow(filepath.Base(s.filePath), s.index, zip(s.headers, fields)), nil
	}
}

// Headers returns the header row once the first Read has happened.
func (s *CSVSource) Headers() []string {
	return s.headers
}

func (s *CSVSource) Ping(ctx context.Context) error {
	_, err := os.Stat(s.filePath)
	if err != nil {
		return fmt.Errorf("csv file not found or inaccessible: %w", err)
	}
	return nil
}

func (s *CSVSource) Close() error {
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// ReadAll drains a source.
func ReadAll(ctx context.Context, src sdtmflow.Source) ([]*record.SourceRow, error) {
	var rows []*record.SourceRow
	for {
		row, err := src.Read(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// ReadDataset loads an already long-format dataset, e.g. one written by the CSV sink, so it can
// be validated without re-running the transformation. Records whose DOMAIN column disagrees
// with domain are kept as-is for the structural layer to flag.
func ReadDataset(rd io.Reader, file, domain string) (*record.Dataset, error) {
	reader := newReader(rd, ',')
	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset %s is empty", file)
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	headers = cleanHeaders(headers)
	for i, h := range headers {
		headers[i] = strings.ToUpper(h)
	}

	ds := record.NewDataset(domain, headers)
	testcd := record.Var(domain, "TESTCD")
	dtc := record.Var(domain, "DTC")
	stdtc := record.Var(domain, "STDTC")
	index := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return ds, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset record %d: %w", index+1, err)
		}
		if blank(fields) {
			continue
		}
		index++
		rec := record.New(domain, record.Ref{File: file, Row: index})
		// DOMAIN picks the --SEQ column, so it is applied before the rest.
		for i, val := range fields {
			if column(headers, i) == record.VarDomain {
				rec.Set(record.VarDomain, strings.TrimSpace(val))
			}
		}
		for i, val := range fields {
			if col := column(headers, i); col != record.VarDomain {
				rec.Set(col, strings.TrimSpace(val))
			}
		}
		rec.TestCode = rec.Get(testcd)
		rec.Timestamp = rec.Get(dtc)
		if rec.Timestamp == "" {
			rec.Timestamp = rec.Get(stdtc)
		}
		ds.Append(rec)
	}
}

func newReader(rd io.Reader, delimiter rune) *csv.Reader {
	reader := csv.NewReader(rd)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func cleanHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func zip(headers, fields []string) map[string]string {
	data := make(map[string]string, len(headers))
	for i, val := range fields {
		data[column(headers, i)] = val
	}
	return data
}

// column names field i, falling back to its position past the header.
func column(headers []string, i int) string {
	if i < len(headers) {
		return headers[i]
	}
	return fmt.Sprintf("column_%d", i)
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
