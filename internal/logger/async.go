package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a logging pipeline.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// pipeline is the state shared by an AsyncHandler and its derived handlers.
type pipeline struct {
	ch      chan asyncRecord
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	once    sync.Once
	dropped atomic.Int64
}

// asyncRecord pairs a record with the handler (attrs/groups) that must write it.
type asyncRecord struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler moves record formatting and I/O off the calling goroutine.
// Records are dropped, and counted, when the buffer is full or the handler
// has been closed.
type AsyncHandler struct {
	inner slog.Handler
	p     *pipeline
}

// NewAsyncHandler creates an AsyncHandler with the given buffer capacity and worker count.
func NewAsyncHandler(inner slog.Handler, bufSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	p := &pipeline{ch: make(chan asyncRecord, bufSize)}
	for range workers {
		p.wg.Add(1)
		go p.drain()
	}
	return &AsyncHandler{inner: inner, p: p}
}

func (p *pipeline) drain() {
	defer p.wg.Done()
	for r := range p.ch {
		_ = r.h.Handle(context.Background(), r.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.p.mu.RLock()
	defer h.p.mu.RUnlock()
	if h.p.closed {
		h.p.dropped.Add(1)
		return nil
	}
	select {
	case h.p.ch <- asyncRecord{h: h.inner, rec: rec.Clone()}:
	default:
		h.p.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler that shares the pipeline but writes through a derived inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), p: h.p}
}

// WithGroup returns a handler that shares the pipeline but writes through a derived inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), p: h.p}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.p.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain the buffer.
// It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.p.once.Do(func() {
		h.p.mu.Lock()
		h.p.closed = true
		close(h.p.ch)
		h.p.mu.Unlock()
		h.p.wg.Wait()
	})
}
