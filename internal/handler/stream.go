package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/view"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

const defaultHeartbeat = 30 * time.Second

// StreamHandler pushes store changes to UIs over SSE.
type StreamHandler struct {
	view      *view.Bindings
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler. A zero heartbeat selects the
// default interval.
func NewStreamHandler(bindings *view.Bindings, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{
		view:      bindings,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Events handles GET /api/v1/events?projectId=&threadId=&kinds=a,b
//
// Each change is sent as a "change" event; the client re-reads the matching
// selector endpoint. Heartbeats keep idle connections open.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, status, msg := h.authorizeFilter(r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	changes := h.view.Watch(ctx, filter)

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"projectId": filter.ProjectID,
		"threadId":  filter.ThreadID,
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("project_id", filter.ProjectID))
			return

		case c, open := <-changes:
			if !open {
				return
			}
			if err := sendSSEEvent(w, flusher, "change", c); err != nil {
				h.logger.Warn("failed to write change event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{
				"timestamp": time.Now().UTC(),
			})
		}
	}
}

// authorizeFilter builds the change filter from the query. Project-restricted
// callers must name an accessible project or a known thread in one, and the
// filter is pinned to that project.
func (h *StreamHandler) authorizeFilter(r *http.Request) (view.Filter, int, string) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := view.Filter{ProjectID: q.Get("projectId"), ThreadID: q.Get("threadId")}
	if kinds := q.Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			filter.Kinds = append(filter.Kinds, store.ChangeKind(strings.TrimSpace(k)))
		}
	}

	if filter.ProjectID != "" && !middleware.CanAccessProject(ctx, filter.ProjectID) {
		return filter, http.StatusForbidden, "project not accessible"
	}
	if !middleware.ProjectRestricted(ctx) {
		return filter, 0, ""
	}

	if filter.ThreadID != "" {
		projectID := h.view.ProjectOf(filter.ThreadID)
		if !canAccessThread(ctx, projectID) || (filter.ProjectID != "" && projectID != filter.ProjectID) {
			return filter, http.StatusForbidden, "thread not accessible"
		}
		filter.ProjectID = projectID
	}
	if filter.ProjectID == "" {
		return filter, http.StatusForbidden, "projectId is required"
	}
	return filter, 0, ""
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
