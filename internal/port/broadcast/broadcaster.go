// Package broadcast defines the ports for telling the outside world that the
// queue changed.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Notifier is told after every successful queue mutation. Implementations
// must not block.
type Notifier interface {
	Notify()
}

// NotifyFunc adapts a plain function to Notifier.
type NotifyFunc func()

// Notify calls f.
func (f NotifyFunc) Notify() { f() }
