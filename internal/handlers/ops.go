// Package handlers exposes the engine's small operational HTTP surface:
// liveness and runner counters. Resource CRUD lives elsewhere in the
// application and is not served here.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushplan/internal/engine"
	"pushplan/internal/templates"
)

type OpsHandler struct {
	runner    *engine.Runner
	templates *templates.Manager
}

func NewOpsHandler(runner *engine.Runner, templates *templates.Manager) *OpsHandler {
	return &OpsHandler{runner: runner, templates: templates}
}

// Router builds the ops router.
func (h *OpsHandler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/api/health", h.Health)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/templates", h.Templates)

	return r
}

func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.runner.Stats())
}

// Templates is a read-only debugging view of a user's template rows.
func (h *OpsHandler) Templates(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	rows, err := h.templates.GetAllByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to list templates", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}
