// Package resilience guards calls to the persistence backends.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker opens after maxFailures consecutive counted failures and rejects
// calls until timeout elapses. While half-open a single trial call runs; its
// outcome closes or reopens the circuit.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	probing     bool
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	ignore      func(error) bool
	onChange    func(from, to State)
	now         func() time.Time // for testing
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithIgnore makes errors matching fn pass through without counting as
// failures. Used for backend answers that are not outages, such as a full slot.
func WithIgnore(fn func(error) bool) Option {
	return func(b *Breaker) { b.ignore = fn }
}

// WithStateChange registers a callback invoked, outside the lock, on every transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a circuit breaker.
func NewBreaker(maxFailures int, timeout time.Duration, opts ...Option) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn if the circuit allows it. A cancelled context is returned
// as-is and never counted against the backend.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, ok := b.acquire()
	if !ok {
		return ErrCircuitOpen
	}
	b.notify(from, b.State())

	err := fn(ctx)

	b.mu.Lock()
	before := b.state
	b.probing = false
	switch {
	case err == nil:
		b.failures = 0
		b.state = StateClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if b.state == StateHalfOpen {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case b.ignore != nil && b.ignore(err):
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.failures = 0
		}
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	after := b.state
	b.mu.Unlock()

	b.notify(before, after)
	return err
}

func (b *Breaker) acquire() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	switch b.state {
	case StateClosed:
		return from, true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return from, false
		}
		b.state = StateHalfOpen
		b.probing = true
		return from, true
	case StateHalfOpen:
		if b.probing {
			return from, false
		}
		b.probing = true
		return from, true
	}
	return from, false
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
