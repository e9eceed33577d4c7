// Package model defines data structures shared by the chat client core.
package model

import (
	"time"
)

// Thread is a conversation timeline within a project. Title, LastMessage and
// LastAgentName are nil when the server has not set them.
type Thread struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Title         *string   `json:"title"`
	LastMessage   *string   `json:"last_message"`
	LastAgentName *string   `json:"last_agent_name"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayTitle returns the thread title, or "Untitled" when none is set.
func (t Thread) DisplayTitle() string {
	if t.Title == nil || *t.Title == "" {
		return "Untitled"
	}
	return *t.Title
}

// CreateThreadRequest is the request to create a new thread.
type CreateThreadRequest struct {
	Title string `json:"title,omitempty"`
}

// UpdateThreadRequest is the request to rename a thread.
type UpdateThreadRequest struct {
	Title string `json:"title"`
}

// ThreadResponse wraps a single thread returned by the REST boundary.
type ThreadResponse struct {
	Thread Thread `json:"thread"`
}

// ListThreadsResponse is the response for listing a project's threads.
type ListThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

// DeleteResponse is the success/failure envelope returned by deletes.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
