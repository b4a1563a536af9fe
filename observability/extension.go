package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension            = (*MetricsExtension)(nil)
	_ ext.JobCreated           = (*MetricsExtension)(nil)
	_ ext.JobDispatched        = (*MetricsExtension)(nil)
	_ ext.JobCompleted         = (*MetricsExtension)(nil)
	_ ext.JobFailed            = (*MetricsExtension)(nil)
	_ ext.JobsExpired          = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted      = (*MetricsExtension)(nil)
	_ ext.WorkflowStepRetrying = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted    = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed       = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/vectorflow/observability"

// MetricsExtension records lifecycle metrics. Every event bumps a
// process-local go-utils counter, read back through Stats, and an
// OpenTelemetry instrument carrying kind or workflow attributes for
// export.
//
// OpenTelemetry instruments:
//   - vectorflow.job.created, .dispatched, .completed, .failed, .expired
//     (Int64Counter, attribute kind)
//   - vectorflow.job.duration (Float64Histogram, seconds from creation to
//     completion, attribute kind)
//   - vectorflow.workflow.started, .completed, .failed (Int64Counter,
//     attribute workflow)
//   - vectorflow.step.retries (Int64Counter, attributes workflow, step)
type MetricsExtension struct {
	JobCreated        gu.Counter
	JobDispatched     gu.Counter
	JobCompleted      gu.Counter
	JobFailed         gu.Counter
	JobExpired        gu.Counter
	WorkflowStarted   gu.Counter
	WorkflowCompleted gu.Counter
	WorkflowFailed    gu.Counter
	StepRetries       gu.Counter

	export otelInstruments
}

type otelInstruments struct {
	jobCreated        metric.Int64Counter
	jobDispatched     metric.Int64Counter
	jobCompleted      metric.Int64Counter
	jobFailed         metric.Int64Counter
	jobExpired        metric.Int64Counter
	jobDuration       metric.Float64Histogram
	workflowStarted   metric.Int64Counter
	workflowCompleted metric.Int64Counter
	workflowFailed    metric.Int64Counter
	stepRetries       metric.Int64Counter
}

// Stats is a point-in-time copy of the process-local counters.
type Stats struct {
	JobsCreated        float64 `json:"jobsCreated"`
	JobsDispatched     float64 `json:"jobsDispatched"`
	JobsCompleted      float64 `json:"jobsCompleted"`
	JobsFailed         float64 `json:"jobsFailed"`
	JobsExpired        float64 `json:"jobsExpired"`
	WorkflowsStarted   float64 `json:"workflowsStarted"`
	WorkflowsCompleted float64 `json:"workflowsCompleted"`
	WorkflowsFailed    float64 `json:"workflowsFailed"`
	StepRetries        float64 `json:"stepRetries"`
}

// NewMetricsExtension creates a MetricsExtension with a default metrics
// collector and the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with a default
// metrics collector, exporting through meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("vectorflow/observability"), meter)
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the
// provided MetricFactory and meter.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory, meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments.
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("vectorflow.job.duration",
		metric.WithDescription("Time from job creation to completion"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobCreated:        factory.Counter("vectorflow.job.created"),
		JobDispatched:     factory.Counter("vectorflow.job.dispatched"),
		JobCompleted:      factory.Counter("vectorflow.job.completed"),
		JobFailed:         factory.Counter("vectorflow.job.failed"),
		JobExpired:        factory.Counter("vectorflow.job.expired"),
		WorkflowStarted:   factory.Counter("vectorflow.workflow.started"),
		WorkflowCompleted: factory.Counter("vectorflow.workflow.completed"),
		WorkflowFailed:    factory.Counter("vectorflow.workflow.failed"),
		StepRetries:       factory.Counter("vectorflow.step.retries"),
		export: otelInstruments{
			jobCreated:        counter("vectorflow.job.created", "Jobs registered"),
			jobDispatched:     counter("vectorflow.job.dispatched", "Jobs moved to processing"),
			jobCompleted:      counter("vectorflow.job.completed", "Jobs completed"),
			jobFailed:         counter("vectorflow.job.failed", "Jobs failed"),
			jobExpired:        counter("vectorflow.job.expired", "Job records removed by expiry"),
			jobDuration:       duration,
			workflowStarted:   counter("vectorflow.workflow.started", "Workflow runs started"),
			workflowCompleted: counter("vectorflow.workflow.completed", "Workflow runs completed"),
			workflowFailed:    counter("vectorflow.workflow.failed", "Workflow runs failed"),
			stepRetries:       counter("vectorflow.step.retries", "Step retries scheduled"),
		},
	}
}

// Stats reads the process-local counters.
func (m *MetricsExtension) Stats() Stats {
	return Stats{
		JobsCreated:        float64(m.JobCreated.Value()),
		JobsDispatched:     float64(m.JobDispatched.Value()),
		JobsCompleted:      float64(m.JobCompleted.Value()),
		JobsFailed:         float64(m.JobFailed.Value()),
		JobsExpired:        float64(m.JobExpired.Value()),
		WorkflowsStarted:   float64(m.WorkflowStarted.Value()),
		WorkflowsCompleted: float64(m.WorkflowCompleted.Value()),
		WorkflowsFailed:    float64(m.WorkflowFailed.Value()),
		StepRetries:        float64(m.StepRetries.Value()),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func kindAttr(rec *job.Record) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", string(rec.Kind)))
}

func workflowAttr(r *workflow.Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow", r.Name))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, rec *job.Record) error {
	m.JobCreated.Inc()
	m.export.jobCreated.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnJobDispatched implements ext.JobDispatched.
func (m *MetricsExtension) OnJobDispatched(ctx context.Context, rec *job.Record) error {
	m.JobDispatched.Inc()
	m.export.jobDispatched.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error {
	m.JobCompleted.Inc()
	m.export.jobCompleted.Add(ctx, 1, kindAttr(rec))
	m.export.jobDuration.Record(ctx, elapsed.Seconds(), kindAttr(rec))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, rec *job.Record) error {
	m.JobFailed.Inc()
	m.export.jobFailed.Add(ctx, 1, kindAttr(rec))
	return nil
}

// OnJobsExpired implements ext.JobsExpired.
func (m *MetricsExtension) OnJobsExpired(ctx context.Context, recs []*job.Record) error {
	for _, rec := range recs {
		m.JobExpired.Inc()
		m.export.jobExpired.Add(ctx, 1, kindAttr(rec))
	}
	return nil
}

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	m.WorkflowStarted.Inc()
	m.export.workflowStarted.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnWorkflowStepRetrying implements ext.WorkflowStepRetrying.
func (m *MetricsExtension) OnWorkflowStepRetrying(ctx context.Context, r *workflow.Run, stepName string, _ int, _ error, _ time.Duration) error {
	m.StepRetries.Inc()
	m.export.stepRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Name),
		attribute.String("step", stepName),
	))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, _ time.Duration) error {
	m.WorkflowCompleted.Inc()
	m.export.workflowCompleted.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.WorkflowFailed.Inc()
	m.export.workflowFailed.Add(ctx, 1, workflowAttr(r))
	return nil
}
