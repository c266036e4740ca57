package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
)

const storageScopeName = "github.com/speedrift/driftdriver/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in drift.store.* metrics.
type InstrumentedStore struct {
	inner     storage.Store
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	taskGauge metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s storage.Store) *InstrumentedStore {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("drift.store.operations",
		metric.WithDescription("Total task store operations executed"),
	)
	dur, _ := m.Float64Histogram("drift.store.operation.duration",
		metric.WithDescription("Task store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("drift.store.errors",
		metric.WithDescription("Total task store operation errors"),
	)
	taskGauge, _ := m.Int64Gauge("drift.task.count",
		metric.WithDescription("Number of tasks in the last loaded graph"),
	)
	return &InstrumentedStore{
		inner:     s,
		tracer:    Tracer(storageScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		taskGauge: taskGauge,
	}
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("drift.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) LoadTasks(ctx context.Context) ([]*types.Task, error) {
	ctx, span, t := s.op(ctx, "LoadTasks")
	tasks, err := s.inner.LoadTasks(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("drift.task.count", len(tasks)))
		s.taskGauge.Record(ctx, int64(len(tasks)))
	}
	s.done(ctx, span, t, err)
	return tasks, err
}

func (s *InstrumentedStore) CreateTask(ctx context.Context, nt *types.NewTask) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("drift.task.id", nt.ID)}
	ctx, span, t := s.op(ctx, "CreateTask", attrs...)
	id, err := s.inner.CreateTask(ctx, nt)
	s.done(ctx, span, t, err, attrs...)
	return id, err
}

func (s *InstrumentedStore) ShowTask(ctx context.Context, id string) (*types.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("drift.task.id", id)}
	ctx, span, t := s.op(ctx, "ShowTask", attrs...)
	task, err := s.inner.ShowTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return task, err
}

func (s *InstrumentedStore) AbandonTask(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("drift.task.id", id)}
	ctx, span, t := s.op(ctx, "AbandonTask", attrs...)
	err := s.inner.AbandonTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) RescheduleTask(ctx context.Context, id string, hours int) error {
	attrs := []attribute.KeyValue{
		attribute.String("drift.task.id", id),
		attribute.Int("drift.defer.hours", hours),
	}
	ctx, span, t := s.op(ctx, "RescheduleTask", attrs...)
	err := s.inner.RescheduleTask(ctx, id, hours)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) LogMessage(ctx context.Context, id, text string) error {
	attrs := []attribute.KeyValue{attribute.String("drift.task.id", id)}
	ctx, span, t := s.op(ctx, "LogMessage", attrs...)
	err := s.inner.LogMessage(ctx, id, text)
	s.done(ctx, span, t, err, attrs...)
	return err
}
