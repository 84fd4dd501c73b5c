package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldflow/internal/ir"
)

var (
	tracer = otel.Tracer("fieldflow.engine")
	meter  = otel.Meter("fieldflow.engine")
)

var (
	documentsTotal   metric.Int64Counter
	fieldErrorsTotal metric.Int64Counter
	batchLatency     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		documentsTotal, err = meter.Int64Counter(
			"fieldflow_documents_total",
			metric.WithDescription("Documents transformed, by final state"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fieldErrorsTotal, err = meter.Int64Counter(
			"fieldflow_field_errors_total",
			metric.WithDescription("Value-level transform failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchLatency, err = meter.Float64Histogram(
			"fieldflow_batch_duration_seconds",
			metric.WithDescription("Duration of batch transform runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// Run is the record of one batch transform.
type Run struct {
	ID         string
	Pipeline   string
	Version    int64
	StartedAt  time.Time
	FinishedAt time.Time

	// Results are in input order.
	Results []Result
}

// Completed counts the documents that ran to completion.
func (r *Run) Completed() int {
	n := 0
	for _, res := range r.Results {
		if res.State == StateCompleted {
			n++
		}
	}
	return n
}

// FieldErrors counts the value-level failures across all documents.
func (r *Run) FieldErrors() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Errors)
	}
	return n
}

// Outputs returns the output documents of completed results, in input order.
func (r *Run) Outputs() []ir.Value {
	out := make([]ir.Value, 0, len(r.Results))
	for _, res := range r.Results {
		if res.State == StateCompleted {
			out = append(out, res.Output)
		}
	}
	return out
}

// Record converts the run into its stored form. graphHash identifies the
// definition the run executed.
func (r *Run) Record(graphHash string) (ir.RunRecord, []ir.RunError) {
	rec := ir.RunRecord{
		ID:          r.ID,
		Pipeline:    r.Pipeline,
		GraphHash:   graphHash,
		Documents:   len(r.Results),
		Completed:   r.Completed(),
		FieldErrors: r.FieldErrors(),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	var errs []ir.RunError
	for i, res := range r.Results {
		for _, fe := range res.Errors {
			errs = append(errs, ir.RunError{Document: i, FieldError: fe})
		}
	}
	return rec, errs
}

// TransformAll runs the committed pipeline over docs on up to workers
// goroutines (the engine default when workers <= 0). Every document runs
// against the same plan. A document that fails does not stop the others;
// only context cancellation or a plan failure aborts the batch.
func (e *Engine) TransformAll(ctx context.Context, docs []ir.Value, workers int) (*Run, error) {
	if workers <= 0 {
		workers = e.workers
	}

	p, err := e.Plan()
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        e.runIDs.Generate(),
		Pipeline:  p.name,
		Version:   p.version,
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, len(docs)),
	}

	ctx, span := tracer.Start(ctx, "engine.TransformAll",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("pipeline", run.Pipeline),
			attribute.Int64("version", run.Version),
			attribute.Int("documents", len(docs)),
			attribute.Int("workers", workers),
		),
	)
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run.Results[i] = p.Execute(d)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	run.FinishedAt = time.Now().UTC()

	e.recordRun(ctx, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch canceled")
		e.logger.Warn("batch canceled", "run", run.ID, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("completed", run.Completed()),
		attribute.Int("field_errors", run.FieldErrors()),
	)
	span.SetStatus(codes.Ok, "")
	e.logger.Info("batch complete",
		"run", run.ID,
		"pipeline", run.Pipeline,
		"version", run.Version,
		"documents", len(docs),
		"completed", run.Completed(),
		"field_errors", run.FieldErrors(),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, nil
}

func (e *Engine) recordRun(ctx context.Context, run *Run) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pipeline", run.Pipeline))

	batchLatency.Record(ctx, run.FinishedAt.Sub(run.StartedAt).Seconds(), attrs)
	fieldErrorsTotal.Add(ctx, int64(run.FieldErrors()), attrs)
	for _, res := range run.Results {
		if res.State == StatePending {
			continue
		}
		documentsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pipeline", run.Pipeline),
			attribute.String("state", res.State.String()),
		))
	}
}
