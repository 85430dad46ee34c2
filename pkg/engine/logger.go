package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/internal/storage"
)

// DefaultLogger is a simple logger that uses zerolog for zero-allocation structured logging.
type DefaultLogger struct {
	logger zerolog.Logger
}

// NewDefaultLogger creates a DefaultLogger with stderr output and timestamps.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// NewLogger creates a DefaultLogger at the given level. Pretty switches to the human-readable
// console writer.
func NewLogger(w io.Writer, level string, pretty bool) *DefaultLogger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &DefaultLogger{
		logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

func (l *DefaultLogger) log(event *zerolog.Event, msg string, keysAndValues ...interface{}) {
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			if err, ok := keysAndValues[i+1].(error); ok {
				event.AnErr(key, err)
				continue
			}
			event.Interface(key, keysAndValues[i+1])
		} else {
			event.Interface(key, nil)
		}
	}
	event.Msg(msg)
}

// Debug logs a debug-level message with structured key/value pairs.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Debug(), msg, keysAndValues...)
}

// Info logs an info-level message with structured key/value pairs.
func (l *DefaultLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Info(), msg, keysAndValues...)
}

// Warn logs a warning-level message with structured key/value pairs.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Warn(), msg, keysAndValues...)
}

// Error logs an error-level message with structured key/value pairs.
func (l *DefaultLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Error(), msg, keysAndValues...)
}

type LogCreator interface {
	CreateLog(ctx context.Context, log storage.Log) error
}

// StorageLogger records run logs in the history store and forwards every entry to next.
// Debug entries are forwarded only.
type StorageLogger struct {
	storage LogCreator
	next    sdtmflow.Logger
	ctx     context.Context
	runID   string
}

func NewStorageLogger(ctx context.Context, s LogCreator, runID string, next sdtmflow.Logger) *StorageLogger {
	if next == nil {
		next = sdtmflow.NopLogger{}
	}
	return &StorageLogger{
		storage: s,
		next:    next,
		ctx:     ctx,
		runID:   runID,
	}
}

func (l *StorageLogger) log(level string, msg string, keysAndValues ...interface{}) {
	entry := storage.Log{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		RunID:     l.runID,
	}

	var data []string
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		valStr := fmt.Sprintf("%v", keysAndValues[i+1])

		switch key {
		case "run_id":
			entry.RunID = valStr
		case "domain":
			entry.Domain = valStr
		case "action":
			entry.Action = valStr
		default:
			data = append(data, fmt.Sprintf("%s: %s", key, valStr))
		}
	}
	entry.Data = strings.Join(data, ", ")

	// A failing history store must not fail the run; the entry still reaches next.
	_ = l.storage.CreateLog(context.WithoutCancel(l.ctx), entry)
}

func (l *StorageLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.next.Debug(msg, keysAndValues...)
}

func (l *StorageLogger) Info(msg string, keysAndValues ...interface{}) {
	l.next.Info(msg, keysAndValues...)
	l.log("INFO", msg, keysAndValues...)
}

func (l *StorageLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.next.Warn(msg, keysAndValues...)
	l.log("WARN", msg, keysAndValues...)
}

func (l *StorageLogger) Error(msg string, keysAndValues ...interface{}) {
	l.next.Error(msg, keysAndValues...)
	l.log("ERROR", msg, keysAndValues...)
}
