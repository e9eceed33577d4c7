package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/agent-chat/internal/store"
)

const (
	// StreamName is the name of the change stream.
	StreamName = "CHAT_CHANGES"

	// SubjectPrefix is the prefix for all change subjects.
	SubjectPrefix = "chat"

	// emptyToken stands in for a missing project or thread id.
	emptyToken = "_"
)

// EnsureStream ensures the change stream exists. It keeps only the latest
// change per subject, so a consumer starting late sees current state.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:              StreamName,
		Subjects:          []string{SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            24 * time.Hour,
		Storage:           jetstream.MemoryStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		Description:       "Latest conversation state change per project, thread and kind",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// ChangeSubject returns chat.<project>.<thread>.<kind> for a change.
func ChangeSubject(c store.Change) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, token(c.ProjectID), token(c.ThreadID), c.Kind)
}

// ProjectFilter returns the filter subject for all changes of a project.
func ProjectFilter(projectID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, token(projectID))
}

// token makes an id safe to use as a single subject token.
func token(id string) string {
	if id == "" {
		return emptyToken
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}
