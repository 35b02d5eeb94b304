package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskrelay"

// Metrics holds all taskrelay metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TasksAdded       metric.Int64Counter
	TasksRouted      metric.Int64Counter
	TasksFinished    metric.Int64Counter
	DirectiveTokens  metric.Int64Histogram
	DispatchCalls    metric.Int64Counter
	DispatchDuration metric.Float64Histogram
	PersistWrites    metric.Int64Counter
	PersistBytes     metric.Int64Histogram
	AlertsRaised     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all metric instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TasksAdded, err = meter.Int64Counter("taskrelay.tasks.added",
		metric.WithDescription("Number of tasks admitted into the queue"))
	if err != nil {
		return nil, err
	}

	m.TasksRouted, err = meter.Int64Counter("taskrelay.tasks.routed",
		metric.WithDescription("Number of tasks handed to the agent"))
	if err != nil {
		return nil, err
	}

	m.TasksFinished, err = meter.Int64Counter("taskrelay.tasks.finished",
		metric.WithDescription("Number of tasks leaving in-progress, by status"))
	if err != nil {
		return nil, err
	}

	m.DirectiveTokens, err = meter.Int64Histogram("taskrelay.directive.tokens",
		metric.WithDescription("Estimated token size of routed directives"))
	if err != nil {
		return nil, err
	}

	m.DispatchCalls, err = meter.Int64Counter("taskrelay.dispatch.calls",
		metric.WithDescription("Number of protocol calls, by method and result code"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("taskrelay.dispatch.duration_seconds",
		metric.WithDescription("Protocol handler duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.PersistWrites, err = meter.Int64Counter("taskrelay.persist.writes",
		metric.WithDescription("Number of persistence flushes, by result"))
	if err != nil {
		return nil, err
	}

	m.PersistBytes, err = meter.Int64Histogram("taskrelay.persist.bytes",
		metric.WithDescription("Size of the persisted queue payload"))
	if err != nil {
		return nil, err
	}

	m.AlertsRaised, err = meter.Int64Counter("taskrelay.alerts.raised",
		metric.WithDescription("Number of dashboard alerts, by severity"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAdded counts an admitted task.
func (m *Metrics) RecordAdded(ctx context.Context, priority string) {
	if m == nil {
		return
	}
	m.TasksAdded.Add(ctx, 1, metric.WithAttributes(attribute.String("task.priority", priority)))
}

// RecordRouted counts a hand-off and its directive size.
func (m *Metrics) RecordRouted(ctx context.Context, priority string, tokens int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("task.priority", priority))
	m.TasksRouted.Add(ctx, 1, attrs)
	m.DirectiveTokens.Record(ctx, int64(tokens), attrs)
}

// RecordFinished counts a task leaving in-progress.
func (m *Metrics) RecordFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.TasksFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("task.status", status)))
}

// RecordDispatch counts a protocol call. code is "ok" on success.
func (m *Metrics) RecordDispatch(ctx context.Context, method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DispatchCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.code", code),
	))
	m.DispatchDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("rpc.method", method)))
}

// RecordPersist counts a persistence flush.
func (m *Metrics) RecordPersist(ctx context.Context, bytes int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PersistWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("persist.result", result)))
	if err == nil {
		m.PersistBytes.Record(ctx, int64(bytes))
	}
}

// RecordAlert counts a raised alert.
func (m *Metrics) RecordAlert(ctx context.Context, severity string) {
	if m == nil {
		return
	}
	m.AlertsRaised.Add(ctx, 1, metric.WithAttributes(attribute.String("alert.severity", severity)))
}
