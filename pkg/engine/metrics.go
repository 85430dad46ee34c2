package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	RowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_engine_rows_read_total",
		Help: "The total number of wide source rows read",
	}, []string{"study_id", "domain"})

	RecordsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_engine_records_produced_total",
		Help: "The total number of target records produced by the transform",
	}, []string{"study_id", "domain"})

	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_engine_records_skipped_total",
		Help: "The total number of records dropped because a required variable was missing",
	}, []string{"study_id", "domain"})

	TransformWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_engine_transform_warnings_total",
		Help: "The total number of degraded fields by warning code",
	}, []string{"study_id", "domain", "code"})

	Findings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_validate_findings_total",
		Help: "The total number of validation findings by severity",
	}, []string{"study_id", "domain", "severity"})

	ComplianceScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdtmflow_validate_compliance_score",
		Help: "The overall compliance score of the last validated dataset",
	}, []string{"study_id", "domain"})

	QualityScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdtmflow_validate_quality_score",
		Help: "The data quality score of the last validated dataset",
	}, []string{"study_id", "domain"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdtmflow_engine_stage_duration_seconds",
		Help:    "Time taken by a pipeline stage for one domain",
		Buckets: prometheus.DefBuckets,
	}, []string{"domain", "stage"})

	ActiveDomains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sdtmflow_engine_active_domains",
		Help: "The number of domains currently being processed",
	})

	DomainErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_engine_domain_errors_total",
		Help: "The total number of domains that failed before producing a report",
	}, []string{"study_id", "domain", "stage"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdtmflow_runs_total",
		Help: "The total number of pipeline runs by outcome",
	}, []string{"status"})
)

// PushMetrics sends the default registry to a Pushgateway under job, grouped by run id.
func PushMetrics(ctx context.Context, url, job, runID string) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
