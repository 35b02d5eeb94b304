package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Post("/rpc", h.RPC)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
		})

		// Admission
		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.AddTask)
		r.Put("/tasks", h.SetTasks)
		r.Delete("/tasks", h.ClearTasks)
		r.Get("/tasks/{id}", h.GetTask)

		// Routing admin
		r.Post("/tasks/{id}/route", h.RouteTask)
		r.Post("/tasks/{id}/complete", h.CompleteTask)
		r.Post("/tasks/{id}/fail", h.FailTask)
		r.Post("/tasks/{id}/block", h.BlockTask)
		r.Post("/tasks/{id}/reset", h.ResetTask)

		// Observability
		r.Get("/queue/status", h.QueueStatus)
		r.Get("/queue/ready", h.ReadyTasks)
		r.Get("/queue/sessions", h.Sessions)
		r.Get("/alerts", h.ListAlerts)
	})
}
