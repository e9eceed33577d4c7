package service

import (
	"errors"

	"github.com/capitalize-ai/agent-chat/internal/transport"
)

var (
	// ErrAlreadySending is returned when a send is already in flight for the thread.
	ErrAlreadySending = errors.New("a message is already being sent in this thread")
	// ErrEmptyMessage is returned for blank content without attachments.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrMissingAgent is returned when no target agent was given.
	ErrMissingAgent = errors.New("an agent must be selected")
	// ErrNoActiveThread is returned when an operation needs an active thread.
	ErrNoActiveThread = errors.New("no active thread")
)

// LimitError is returned when the usage gate refuses a send.
type LimitError struct {
	Message string
}

func (e *LimitError) Error() string {
	return e.Message
}

const defaultLimitMessage = "Your token limit has been reached."

// FormatError turns any send failure into the message shown to the user.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		return limitErr.Message
	}

	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch apiErr.Kind {
	case transport.KindTokenLimit:
		return "Token limit exceeded. Wait for your limit to reset or contact an administrator."
	case transport.KindUnauthorized:
		return "Your session has expired. Please sign in again."
	case transport.KindRateLimited:
		return "Too many requests. Please wait a moment and try again."
	case transport.KindTimeout:
		return "The response took too long. Please try again."
	case transport.KindCanceled:
		return "The request was cancelled."
	case transport.KindNetwork:
		return "Could not reach the server. Check your connection and try again."
	}

	if apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}
