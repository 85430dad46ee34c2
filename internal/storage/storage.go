package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusFailed   = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID        string    `json:"id"`
	StudyID   string    `json:"study_id"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Status    string    `json:"status"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Domains   []string  `json:"domains"`
	Critical  int       `json:"critical"`
	Errors    int       `json:"errors"`
	Warnings  int       `json:"warnings"`
	// Report is the full JSON run report.
	Report    string   `json:"report,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

type Log struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Domain    string    `json:"domain,omitempty"`
	Action    string    `json:"action,omitempty"`
	Data      string    `json:"data,omitempty"`
}

type CommonFilter struct {
	Page  int
	Limit int
}

type RunFilter struct {
	CommonFilter
	StudyID string
	Status  string
}

type LogFilter struct {
	CommonFilter
	RunID  string
	Level  string
	Domain string
}

// Storage persists run history. Implementations must be safe for concurrent use.
type Storage interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, int, error)
	DeleteRun(ctx context.Context, id string) error

	CreateLog(ctx context.Context, log Log) error
	ListLogs(ctx context.Context, filter LogFilter) ([]Log, int, error)

	Close() error
}
