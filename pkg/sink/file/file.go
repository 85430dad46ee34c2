package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/pkg/record"
)

// FileSink writes one formatted record per line (NDJSON with the JSON formatter).
type FileSink struct {
	filename  string
	file      *os.File
	formatter sdtmflow.Formatter
	mu        sync.Mutex
}

func NewFileSink(filename string, formatter sdtmflow.Formatter) (*FileSink, error) {
	if formatter == nil {
		return nil, fmt.Errorf("file sink %s: formatter is required", filename)
	}
	return &FileSink{
		filename:  filename,
		formatter: formatter,
	}, nil
}

func (s *FileSink) ensureOpen() error {
	if s.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(s.filename, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	s.file = f
	return nil
}

// Write replaces the file content with the dataset. Records are written in dataset order.
func (s *FileSink) Write(ctx context.Context, ds *record.Dataset) error {
	if ds == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	w := bufio.NewWriter(s.file)
	for i, rec := range ds.Records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		data, err := s.formatter.Format(rec, ds.Columns)
		if err != nil {
			return fmt.Errorf("failed to format record %s: %w", rec.Source, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline to file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}
	return nil
}

func (s *FileSink) Path() string {
	return s.filename
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
