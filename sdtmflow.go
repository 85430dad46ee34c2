package sdtmflow

import (
	"context"

	"github.com/user/sdtmflow/pkg/record"
)

// Source defines the interface for reading wide rows from an EDC extract.
// Read returns (nil, nil) once the source is exhausted.
type Source interface {
	Read(ctx context.Context) (*record.SourceRow, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sink defines the interface for writing a target dataset.
type Sink interface {
	Write(ctx context.Context, ds *record.Dataset) error
	Close() error
}

// Formatter defines the interface for rendering a single target record.
type Formatter interface {
	Format(rec *record.Record, columns []string) ([]byte, error)
}

// Logger defines the interface for logging in sdtmflow.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything. Components fall back to it when no logger is configured.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
