package model

import (
	"encoding/json"
)

// EventType is the discriminator of a stream envelope.
type EventType string

const (
	EventTypeChunk    EventType = "chunk"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// StreamEnvelope is one decoded `data: ` line of the chat stream. Messages and
// Error are kept raw so that a malformed terminal payload can be coerced
// instead of failing the envelope.
type StreamEnvelope struct {
	Type     EventType       `json:"type"`
	Content  string          `json:"content,omitempty"`
	Messages json.RawMessage `json:"messages,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// CompletePayload is delivered once when a stream finishes successfully.
// Messages is nil when the server sent no usable list.
type CompletePayload struct {
	Messages []Message
	Raw      json.RawMessage
}

// DecodeMessages parses raw as a message list. Anything other than a JSON
// array of messages yields nil.
func DecodeMessages(raw json.RawMessage) []Message {
	if len(raw) == 0 {
		return nil
	}
	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil
	}
	return messages
}
