package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ProvisionalPrefix marks message ids generated locally before the server
// confirms a send. Server ids never carry it.
const ProvisionalPrefix = "local-"

// Message represents a conversation message.
type Message struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	AgentID  *string        `json:"agent_id"`
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// UI-only state, never sent to the server.
	IsLoading bool   `json:"isLoading,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AgentName returns the agent name recorded in the message metadata, if any.
func (m Message) AgentName() string {
	for _, key := range []string{"agentName", "agent_name"} {
		if v, ok := m.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// NewProvisionalID returns a fresh locally generated message id.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id was generated locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Attachment is a file sent alongside a chat message as a multipart part.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// ChatRequest is the body of POST /threads/{threadId}/chat.
type ChatRequest struct {
	Message      string       `json:"message"`
	AgentID      string       `json:"agentId"`
	IncludeFiles bool         `json:"includeFiles,omitempty"`
	Stream       bool         `json:"stream"`
	Files        []Attachment `json:"-"`
}

// ChatResponse is the non-streaming chat response.
type ChatResponse struct {
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages"`
	Response string    `json:"response,omitempty"`
}

// ListMessagesResponse is the response for listing a thread's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
