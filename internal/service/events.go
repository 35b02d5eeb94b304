package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/taskrelay/internal/port/broadcast"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

// Event types sent to broadcast clients.
const (
	EventQueueStatus = "queue.status"
	EventAlert       = "alert"
	EventTaskRouted  = "task.routed"
)

// QueueEvents fans the queue status out to live clients after mutations.
// Bursts of Notify calls collapse into one broadcast of the latest status.
type QueueEvents struct {
	queue  *TaskQueue
	hub    broadcast.Broadcaster
	mq     messagequeue.Queue
	signal chan struct{}
}

// NewQueueEvents creates the refresh fan-out. hub and mq may be nil.
func NewQueueEvents(queue *TaskQueue, hub broadcast.Broadcaster, mq messagequeue.Queue) *QueueEvents {
	return &QueueEvents{
		queue:  queue,
		hub:    hub,
		mq:     mq,
		signal: make(chan struct{}, 1),
	}
}

// Notify implements broadcast.Notifier. It never blocks.
func (e *QueueEvents) Notify() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Run publishes the queue status after each signal until ctx is cancelled.
func (e *QueueEvents) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.signal:
			e.publish(ctx)
		}
	}
}

func (e *QueueEvents) publish(ctx context.Context) {
	st := e.queue.Status()
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, EventQueueStatus, st)
	}
	if e.mq == nil {
		return
	}

	payload := messagequeue.QueueChangedPayload{
		TotalTasks:     st.TotalTasks,
		ByStatus:       make(map[string]int, len(st.ByStatus)),
		ActiveSessions: st.ActiveSessions,
	}
	for s, n := range st.ByStatus {
		payload.ByStatus[string(s)] = n
	}
	if st.CurrentTask != nil {
		payload.CurrentTask = st.CurrentTask.ID
	}
	publishJSON(ctx, e.mq, messagequeue.SubjectQueueChanged, payload)
}

// publishJSON sends v on subject. Failures are logged; observers are best effort.
func publishJSON(ctx context.Context, mq messagequeue.Queue, subject string, v any) {
	if mq == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode event", "subject", subject, "error", err)
		return
	}
	if err := mq.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish event", "subject", subject, "error", err)
	}
}
