package a2a

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	a2alib "github.com/a2aproject/a2a-go/a2a"
	"github.com/go-chi/chi/v5"
)

// maxStoredTasks bounds the task responses kept for GET /a2a/tasks/{id}.
const maxStoredTasks = 256

// Handler serves the A2A protocol endpoints.
type Handler struct {
	card   a2alib.AgentCard
	caller Caller

	mu    sync.RWMutex
	tasks map[string]*TaskResponse
	order []string // insertion order for eviction
}

// NewHandler creates an A2A handler. caller may be nil, in which case only
// the agent card is served.
func NewHandler(card a2alib.AgentCard, caller Caller) *Handler {
	return &Handler{
		card:   card,
		caller: caller,
		tasks:  make(map[string]*TaskResponse),
	}
}

// MountRoutes registers A2A routes on the given chi router.
// These are mounted at the root level, not under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	if h.caller != nil {
		r.Post("/a2a/tasks", h.handleCreateTask)
		r.Get("/a2a/tasks/{id}", h.handleGetTask)
	}
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.card)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Skill == "" {
		http.Error(w, `{"error":"id and skill are required"}`, http.StatusBadRequest)
		return
	}

	resp := &TaskResponse{ID: req.ID, Skill: req.Skill, Status: StatusCompleted}
	out, perr := h.caller.Call(r.Context(), req.Skill, req.Input)
	if perr != nil {
		resp.Status = StatusFailed
		resp.Error = perr
	} else {
		resp.Output = out
	}
	h.store(resp)

	slog.InfoContext(r.Context(), "a2a task handled", "id", req.ID, "skill", req.Skill, "status", resp.Status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) store(resp *TaskResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tasks[resp.ID]; !ok {
		h.order = append(h.order, resp.ID)
	}
	h.tasks[resp.ID] = resp
	for len(h.order) > maxStoredTasks {
		delete(h.tasks, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	resp, ok := h.tasks[id]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
