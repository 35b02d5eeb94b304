package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/protocol"
	"github.com/Strob0t/taskrelay/internal/service"
)

// Handlers holds the services behind the HTTP routes.
type Handlers struct {
	Queue      *service.TaskQueue
	Routing    *service.RoutingService
	Alerts     *service.AlertLog
	Dispatcher *protocol.Dispatcher
	Version    string
	BodyLimit  int64 // 0 means DefaultBodyLimit
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return DefaultBodyLimit
}

type healthResponse struct {
	Status     string `json:"status"`
	Dispatcher string `json:"dispatcher"`
	Tasks      int    `json:"tasks"`
}

// Health reports liveness plus whether the dispatcher accepts calls.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Dispatcher: "stopped", Tasks: h.Queue.Status().TotalTasks}
	if h.Dispatcher.Running() {
		resp.Dispatcher = "running"
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Admission ---

type addTaskResponse struct {
	Task  task.Task `json:"task"`
	Added bool      `json:"added"`
}

// AddTask admits one task. A duplicate returns the stored task with 200.
func (h *Handlers) AddTask(w http.ResponseWriter, r *http.Request) {
	t, ok := readJSON[task.Task](w, r, h.bodyLimit())
	if !ok {
		return
	}
	stored, added, err := h.Routing.Admit(r.Context(), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, addTaskResponse{Task: stored, Added: added})
}

// SetTasks replaces the whole queue. Nothing changes when any task is invalid.
func (h *Handlers) SetTasks(w http.ResponseWriter, r *http.Request) {
	tasks, ok := readJSON[[]task.Task](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if err := h.Queue.SetTasks(tasks); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Queue.Status())
}

// ClearTasks empties the queue.
func (h *Handlers) ClearTasks(w http.ResponseWriter, _ *http.Request) {
	h.Queue.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks lists tasks, optionally filtered by ?status= and ?priority=.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	f := service.Filter{
		Status:   task.Status(r.URL.Query().Get("status")),
		Priority: task.Priority(r.URL.Query().Get("priority")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(f.Status))
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "unknown priority "+string(f.Priority))
		return
	}
	writeJSON(w, http.StatusOK, h.Queue.List(f))
}

// GetTask returns a single task.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Queue.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Routing admin ---

type transitionRequest struct {
	Reason string `json:"reason"`
	Output string `json:"output"`
}

// readTransition decodes the optional body of a transition route.
func (h *Handlers) readTransition(w http.ResponseWriter, r *http.Request) (transitionRequest, bool) {
	if r.ContentLength == 0 {
		return transitionRequest{}, true
	}
	return readJSON[transitionRequest](w, r, h.bodyLimit())
}

// RouteTask starts a task and returns its directive and session.
func (h *Handlers) RouteTask(w http.ResponseWriter, r *http.Request) {
	handoff, err := h.Routing.Route(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handoff)
}

// CompleteTask marks the in-progress task completed.
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readTransition(w, r)
	if !ok {
		return
	}
	t, err := h.Routing.Complete(r.Context(), urlParam(r, "id"), req.Output)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// FailTask marks the in-progress task failed.
func (h *Handlers) FailTask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readTransition(w, r)
	if !ok {
		return
	}
	t, err := h.Routing.Fail(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// BlockTask marks the in-progress task blocked. A reason is required.
func (h *Handlers) BlockTask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readTransition(w, r)
	if !ok {
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	res, err := h.Routing.Block(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ResetTask returns a failed or blocked task to ready.
func (h *Handlers) ResetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Routing.Reset(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Observability ---

// QueueStatus returns the aggregate queue view.
func (h *Handlers) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.Status())
}

// ReadyTasks lists tasks eligible to start, in scheduling order.
func (h *Handlers) ReadyTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.ReadyTasks())
}

// Sessions lists hand-off sessions.
func (h *Handlers) Sessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.Sessions())
}

// ListAlerts returns recent alerts, newest first, optionally filtered by
// ?taskId=, ?severity= and ?blocking=true.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.AlertFilter{
		TaskID:   q.Get("taskId"),
		Severity: report.Severity(q.Get("severity")),
	}
	if f.Severity != "" && !f.Severity.Valid() {
		writeError(w, http.StatusBadRequest, "unknown severity "+string(f.Severity))
		return
	}
	if v := q.Get("blocking"); v != "" {
		blocking, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "blocking must be true or false")
			return
		}
		f.Blocking = blocking
	}
	writeJSON(w, http.StatusOK, h.Alerts.Find(f))
}

// --- Protocol ---

// RPC feeds the raw request envelope to the dispatcher. Protocol errors are
// carried in the envelope, so the HTTP status is 200 whenever a response exists.
func (h *Handlers) RPC(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyLimit()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.Dispatcher.HandleMessage(r.Context(), raw))
}
