package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Handler serves one method. params is the raw parameter object.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Observer is called after every dispatched request. code is zero on success.
type Observer func(ctx context.Context, method string, elapsed time.Duration, code Code)

// Dispatcher routes requests to registered handlers and wraps the outcome in
// a Response. Handlers run on the caller's goroutine and may run concurrently.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	running  atomic.Bool
	observer Observer
}

// NewDispatcher creates a stopped Dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for method.
func (d *Dispatcher) Register(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// SetObserver installs a hook called after each request.
func (d *Dispatcher) SetObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = o
}

// Start makes the dispatcher accept requests.
func (d *Dispatcher) Start() { d.running.Store(true) }

// Stop makes every subsequent request fail with service-unavailable.
func (d *Dispatcher) Stop() { d.running.Store(false) }

// Running reports whether the dispatcher accepts requests.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Methods returns the registered method names, sorted.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Call invokes method directly and returns its result or protocol error.
func (d *Dispatcher) Call(ctx context.Context, method string, params json.RawMessage) (any, *Error) {
	start := time.Now()

	d.mu.RLock()
	h, ok := d.handlers[method]
	observer := d.observer
	d.mu.RUnlock()

	var (
		result any
		perr   *Error
	)
	switch {
	case !d.running.Load():
		perr = NewError(CodeServiceUnavailable, "dispatcher is not running", nil)
	case !ok:
		perr = NewError(CodeMethodNotFound, fmt.Sprintf("method %q not found", method),
			map[string]any{"methods": d.Methods()})
	default:
		var err error
		result, err = h(ctx, params)
		if err != nil {
			perr = FromError(err)
			if perr.Code == CodeInternalError {
				slog.Error("handler failed", "method", method, "error", err)
			}
		}
	}

	if observer != nil {
		var code Code
		if perr != nil {
			code = perr.Code
		}
		observer(ctx, method, time.Since(start), code)
	}
	return result, perr
}

// Dispatch serves req and returns its response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	result, perr := d.Call(ctx, req.Method, req.Params)
	if perr != nil {
		return Response{Error: perr, ID: req.ID}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{Error: FromError(fmt.Errorf("marshal result: %w", err)), ID: req.ID}
	}
	return Response{Result: raw, ID: req.ID}
}

// HandleMessage parses a raw wire message, dispatches it and returns the
// encoded response. Malformed input never reaches a handler.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) []byte {
	if !json.Valid(raw) {
		return encode(Response{
			Error: NewError(CodeParseError, "parse error", nil),
			ID:    json.RawMessage("null"),
		})
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(Response{
			Error: NewError(CodeInvalidRequest, "invalid request", map[string]string{"error": err.Error()}),
			ID:    json.RawMessage("null"),
		})
	}

	var problems []string
	if req.Method == "" {
		problems = append(problems, "method is required")
	}
	if !validID(req.ID) {
		problems = append(problems, "id must be a string or number")
		req.ID = json.RawMessage("null")
	}
	if !validParams(req.Params) {
		problems = append(problems, "params must be an object")
	}
	if len(problems) > 0 {
		return encode(Response{
			Error: NewError(CodeInvalidRequest, "invalid request", map[string]any{"problems": problems}),
			ID:    req.ID,
		})
	}

	return encode(d.Dispatch(ctx, req))
}

func encode(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Only Error.Data can fail to marshal here.
		resp.Error.Data = nil
		data, _ = json.Marshal(resp)
	}
	return data
}
