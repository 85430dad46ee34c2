package stdout

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/pkg/record"
)

// StdoutSink streams formatted records, one per line. A single sink may be shared by every
// domain of a run; each dataset is written as one uninterrupted block.
type StdoutSink struct {
	formatter sdtmflow.Formatter
	w         io.Writer
	mu        sync.Mutex
}

// NewStdoutSink writes to os.Stdout.
func NewStdoutSink(formatter sdtmflow.Formatter) *StdoutSink {
	return NewWriterSink(os.Stdout, formatter)
}

func NewWriterSink(w io.Writer, formatter sdtmflow.Formatter) *StdoutSink {
	return &StdoutSink{formatter: formatter, w: w}
}

func (s *StdoutSink) Write(ctx context.Context, ds *record.Dataset) error {
	if ds == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(s.w)
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
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (s *StdoutSink) Close() error {
	return nil
}
