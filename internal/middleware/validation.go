package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	maxContentBytes = 100000
	maxIDLength     = 128
	maxTitleLength  = 256
)

// ValidateMessageContent validates message content. Blank content is only
// accepted when files are attached.
func ValidateMessageContent(content string, hasFiles bool) error {
	if strings.TrimSpace(content) == "" && !hasFiles {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a project, thread or agent id taken from a request.
func ValidateID(kind, id string) error {
	if id == "" {
		return errors.New(kind + " ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New(kind + " ID exceeds maximum length")
	}
	if strings.ContainsAny(id, "/?# ") {
		return errors.New("invalid " + kind + " ID format")
	}
	return nil
}

// ValidateTitle validates a thread title.
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
