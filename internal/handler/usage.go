package handler

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/agent-chat/internal/view"
)

// UsageRefresher refreshes the cached usage snapshot.
type UsageRefresher interface {
	Refresh(ctx context.Context) error
}

// UsageHandler handles usage endpoints.
type UsageHandler struct {
	refresher UsageRefresher
	view      *view.Bindings
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(refresher UsageRefresher, bindings *view.Bindings) *UsageHandler {
	return &UsageHandler{refresher: refresher, view: bindings}
}

// Get handles GET /api/v1/usage. ?refresh=true fetches a fresh snapshot
// first.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" || h.view.Usage().Snapshot == nil {
		if err := h.refresher.Refresh(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.view.Usage())
}

// LastError handles GET /api/v1/errors/last
func (h *UsageHandler) LastError(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"error": h.view.LastError()})
}
