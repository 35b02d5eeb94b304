// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants used by taskrelay.
const (
	SubjectTaskSubmit   = "tasks.submit"   // producers → relay: admit a task
	SubjectTaskRouted   = "tasks.routed"   // relay → observers: a task entered in-progress
	SubjectTaskFinished = "tasks.finished" // relay → observers: completed, failed or blocked
	SubjectQueueChanged = "queue.changed"  // relay → observers: queue status after a mutation
	SubjectAlertRaised  = "alerts.raised"  // relay → observers: dashboard alert
)
