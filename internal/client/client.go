// Package client wraps the chat backend REST/SSE boundary.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/transport"
)

// API is the typed REST boundary the client core depends on.
type API struct {
	transport *transport.Client
}

// New creates an API over the given transport.
func New(t *transport.Client) *API {
	return &API{transport: t}
}

func threadsPath(projectID string) string {
	return "/threads/projects/" + url.PathEscape(projectID)
}

func threadPath(threadID string) string {
	return "/threads/" + url.PathEscape(threadID)
}

// CreateThread handles POST /threads/projects/{projectId}.
func (a *API) CreateThread(ctx context.Context, projectID, title string) (*model.Thread, error) {
	var resp model.ThreadResponse
	if err := a.transport.Send(ctx, http.MethodPost, threadsPath(projectID), &model.CreateThreadRequest{Title: title}, &resp); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	if resp.Thread.ID == "" {
		return nil, fmt.Errorf("failed to create thread: response carried no thread")
	}
	if resp.Thread.ProjectID == "" {
		resp.Thread.ProjectID = projectID
	}
	return &resp.Thread, nil
}

// ListThreads handles GET /threads/projects/{projectId}.
func (a *API) ListThreads(ctx context.Context, projectID string) ([]model.Thread, error) {
	var resp model.ListThreadsResponse
	if err := a.transport.Send(ctx, http.MethodGet, threadsPath(projectID), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	for i := range resp.Threads {
		if resp.Threads[i].ProjectID == "" {
			resp.Threads[i].ProjectID = projectID
		}
	}
	return resp.Threads, nil
}

// UpdateThread handles PUT /threads/{threadId}.
func (a *API) UpdateThread(ctx context.Context, threadID, title string) (*model.Thread, error) {
	var resp model.ThreadResponse
	if err := a.transport.Send(ctx, http.MethodPut, threadPath(threadID), &model.UpdateThreadRequest{Title: title}, &resp); err != nil {
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}
	return &resp.Thread, nil
}

// DeleteThread handles DELETE /threads/{threadId}.
func (a *API) DeleteThread(ctx context.Context, threadID string) error {
	var resp model.DeleteResponse
	if err := a.transport.Send(ctx, http.MethodDelete, threadPath(threadID), nil, &resp); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// GetMessages handles GET /threads/{threadId}/messages.
func (a *API) GetMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	var resp model.ListMessagesResponse
	if err := a.transport.Send(ctx, http.MethodGet, threadPath(threadID)+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return resp.Messages, nil
}

// Chat handles the buffered form of POST /threads/{threadId}/chat.
func (a *API) Chat(ctx context.Context, threadID string, req *model.ChatRequest) (*model.ChatResponse, error) {
	req.Stream = false
	var resp model.ChatResponse
	if err := a.transport.Send(ctx, http.MethodPost, threadPath(threadID)+"/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatStream handles the streaming form of POST /threads/{threadId}/chat.
func (a *API) ChatStream(ctx context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
	req.Stream = true
	a.transport.Stream(ctx, threadPath(threadID)+"/chat", req, h)
}

// GetUsage handles GET /usage/current.
func (a *API) GetUsage(ctx context.Context) (*model.UsageSnapshot, error) {
	var resp model.UsageResponse
	if err := a.transport.Send(ctx, http.MethodGet, "/usage/current", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	snapshot := resp.Snapshot()
	return &snapshot, nil
}
