package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/taskrelay/internal/adapter/otel"
	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/port/broadcast"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

// DefaultAlertLogSize bounds the alert log when no size is configured.
const DefaultAlertLogSize = 200

// AlertLog keeps the most recent dashboard alerts in memory. Alerts are
// ephemeral: they are never persisted or scheduled.
type AlertLog struct {
	mu      sync.RWMutex
	entries []report.Alert // oldest first
	limit   int
	hub     broadcast.Broadcaster
	mq      messagequeue.Queue
	metrics *cfotel.Metrics
	now     func() time.Time
}

// NewAlertLog creates an alert log holding at most limit entries. hub and mq may be nil.
func NewAlertLog(limit int, hub broadcast.Broadcaster, mq messagequeue.Queue) *AlertLog {
	if limit <= 0 {
		limit = DefaultAlertLogSize
	}
	return &AlertLog{limit: limit, hub: hub, mq: mq, now: time.Now}
}

// SetMetrics attaches metric instruments.
func (l *AlertLog) SetMetrics(m *cfotel.Metrics) { l.metrics = m }

// Raise records a and fans it out. ID and Timestamp are filled when empty.
func (l *AlertLog) Raise(ctx context.Context, a report.Alert) report.Alert {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = l.now()
	}

	l.mu.Lock()
	l.entries = append(l.entries, a)
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	l.mu.Unlock()

	slog.Warn("alert raised", "alert_id", a.ID, "severity", a.Severity, "task_id", a.TaskID,
		"source", a.Source, "human_attention", a.RequiresHumanAttention, "message", a.Message)
	l.metrics.RecordAlert(ctx, string(a.Severity))

	if l.hub != nil {
		l.hub.BroadcastEvent(ctx, EventAlert, a)
	}
	publishJSON(ctx, l.mq, messagequeue.SubjectAlertRaised, messagequeue.AlertRaisedPayload{
		AlertID:                a.ID,
		Message:                a.Message,
		Severity:               string(a.Severity),
		TaskID:                 a.TaskID,
		RequiresHumanAttention: a.RequiresHumanAttention,
		Timestamp:              a.Timestamp,
	})
	return a
}

// List returns the retained alerts, newest first.
func (l *AlertLog) List() []report.Alert {
	return l.Find(AlertFilter{})
}

// AlertFilter narrows Find. Zero fields match everything.
type AlertFilter struct {
	TaskID   string
	Severity report.Severity
	// Blocking keeps only critical alerts and alerts that need a human.
	Blocking bool
}

func (f AlertFilter) match(a *report.Alert) bool {
	return (f.TaskID == "" || a.TaskID == f.TaskID) &&
		(f.Severity == "" || a.Severity == f.Severity) &&
		(!f.Blocking || a.Severity == report.SeverityCritical || a.RequiresHumanAttention)
}

// Find returns the retained alerts matching f, newest first.
func (l *AlertLog) Find(f AlertFilter) []report.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]report.Alert, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		if f.match(&l.entries[i]) {
			out = append(out, l.entries[i])
		}
	}
	return out
}
