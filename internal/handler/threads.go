// Package handler provides HTTP handlers for the gateway API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/view"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// ThreadHandler handles thread endpoints.
type ThreadHandler struct {
	threads  *service.ThreadService
	messages *service.MessageService
	store    *store.Store
	view     *view.Bindings
	logger   *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(threads *service.ThreadService, messages *service.MessageService, st *store.Store, bindings *view.Bindings, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		threads:  threads,
		messages: messages,
		store:    st,
		view:     bindings,
		logger:   log,
	}
}

// ThreadListResponse is the gateway view of a project's threads.
type ThreadListResponse struct {
	Threads        []model.Thread `json:"threads"`
	ActiveThreadID string         `json:"activeThreadId,omitempty"`
}

type setActiveRequest struct {
	ThreadID string `json:"threadId"`
}

// projectParam reads and authorizes the projectID route parameter.
func projectParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	projectID := chi.URLParam(r, "projectID")
	if err := middleware.ValidateID("project", projectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if !middleware.CanAccessProject(r.Context(), projectID) {
		writeError(w, http.StatusForbidden, "project not accessible")
		return "", false
	}
	return projectID, true
}

// threadParam reads the threadID route parameter and authorizes its project.
// Project-restricted callers are refused threads the gateway has not loaded.
func threadParam(w http.ResponseWriter, r *http.Request, st *store.Store) (string, bool) {
	threadID := chi.URLParam(r, "threadID")
	if err := middleware.ValidateID("thread", threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if !canAccessThread(r.Context(), st.ProjectOf(threadID)) {
		writeError(w, http.StatusForbidden, "thread not accessible")
		return "", false
	}
	return threadID, true
}

// canAccessThread authorizes a thread by its project, which is "" when the
// thread is unknown.
func canAccessThread(ctx context.Context, projectID string) bool {
	if projectID == "" {
		return !middleware.ProjectRestricted(ctx)
	}
	return middleware.CanAccessProject(ctx, projectID)
}

// List handles GET /api/v1/projects/{projectID}/threads. The list is fetched
// from the backend on first use or when ?refresh=true.
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("refresh") == "true" || h.store.Revision(store.ChangeThreads, projectID, "") == 0 {
		if err := h.threads.Load(r.Context(), projectID); err != nil {
			h.logger.Error("failed to load threads", zap.String("project_id", projectID), zap.Error(err))
			writeServiceError(w, err)
			return
		}
	}

	resp := ThreadListResponse{Threads: h.view.Threads(projectID)}
	if active, ok := h.view.ActiveThread(projectID); ok {
		resp.ActiveThreadID = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/projects/{projectID}/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	var req model.CreateThreadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.threads.Create(r.Context(), projectID, req.Title)
	if err != nil {
		h.logger.Error("failed to create thread", zap.String("project_id", projectID), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.ThreadResponse{Thread: *thread})
}

// SetActive handles PUT /api/v1/projects/{projectID}/active. Selecting a
// thread re-fetches its messages.
func (h *ThreadHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ThreadID == "" {
		h.threads.SetActive(r.Context(), projectID, "")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := middleware.ValidateID("thread", req.ThreadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if thread, ok := h.store.Thread(req.ThreadID); !ok || thread.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	h.threads.SetActive(r.Context(), projectID, req.ThreadID)
	if err := h.messages.Load(r.Context(), req.ThreadID); err != nil {
		h.logger.Warn("failed to load messages", zap.String("thread_id", req.ThreadID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, setActiveRequest{ThreadID: req.ThreadID})
}

// Rename handles PUT /api/v1/threads/{threadID}
func (h *ThreadHandler) Rename(w http.ResponseWriter, r *http.Request) {
	threadID, ok := threadParam(w, r, h.store)
	if !ok {
		return
	}

	var req model.UpdateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.threads.Rename(r.Context(), threadID, req.Title); err != nil {
		writeServiceError(w, err)
		return
	}

	thread, ok := h.store.Thread(threadID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, model.ThreadResponse{Thread: thread})
}

// Delete handles DELETE /api/v1/threads/{threadID}
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID, ok := threadParam(w, r, h.store)
	if !ok {
		return
	}

	if err := h.threads.Delete(r.Context(), threadID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
