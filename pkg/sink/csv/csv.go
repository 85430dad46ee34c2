package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/sdtmflow/pkg/record"
)

// CSVSink writes a dataset as a long-format delimited file, one column per declared variable.
type CSVSink struct {
	filename  string
	delimiter rune
	mu        sync.Mutex
}

func NewCSVSink(filename string, delimiter rune) *CSVSink {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVSink{filename: filename, delimiter: delimiter}
}

// Write replaces the file with the dataset. The header is the dataset's column order.
func (s *CSVSink) Write(ctx context.Context, ds *record.Dataset) error {
	if ds == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp := s.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer os.Remove(tmp)

	w := csv.NewWriter(f)
	w.Comma = s.delimiter
	if err := w.Write(ds.Columns); err != nil {
		f.Close()
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, rec := range ds.Records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
		}
		if err := w.Write(rec.Values(ds.Columns)); err != nil {
			f.Close()
			return fmt.Errorf("failed to write csv record %s: %w", rec.Source, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush csv file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close csv file: %w", err)
	}
	return os.Rename(tmp, s.filename)
}

func (s *CSVSink) Path() string {
	return s.filename
}

func (s *CSVSink) Close() error {
	return nil
}
