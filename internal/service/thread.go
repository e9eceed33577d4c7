// Package service implements the conversation workflows of the chat client:
// the thread registry, message sends with optimistic reconciliation, and the
// controller that ties them to the usage gate.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const previewLength = 100

// ThreadAPI is the part of the REST boundary the thread registry uses.
type ThreadAPI interface {
	CreateThread(ctx context.Context, projectID, title string) (*model.Thread, error)
	ListThreads(ctx context.Context, projectID string) ([]model.Thread, error)
	UpdateThread(ctx context.Context, threadID, title string) (*model.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// ActiveThreadStore persists the active thread of each project.
type ActiveThreadStore interface {
	Get(ctx context.Context, projectID string) (string, error)
	Set(ctx context.Context, projectID, threadID string) error
	ForgetThread(ctx context.Context, threadID string) error
}

// ThreadService maintains the per-project thread lists.
type ThreadService struct {
	api    ThreadAPI
	store  *store.Store
	active ActiveThreadStore
	logger *logger.Logger
	now    func() time.Time

	// creating serializes thread creation per project.
	mu       sync.Mutex
	creating map[string]*sync.Mutex
}

// NewThreadService creates a thread service. active may be nil.
func NewThreadService(api ThreadAPI, st *store.Store, active ActiveThreadStore, log *logger.Logger) *ThreadService {
	return &ThreadService{
		api:      api,
		store:    st,
		active:   active,
		logger:   log.Named("threads"),
		now:      time.Now,
		creating: make(map[string]*sync.Mutex),
	}
}

// Load fetches the project's threads and restores its persisted active
// thread when that thread still exists.
func (s *ThreadService) Load(ctx context.Context, projectID string) error {
	threads, err := s.api.ListThreads(ctx, projectID)
	if err != nil {
		s.store.SetLastError(FormatError(err))
		return err
	}
	s.store.SetThreads(projectID, threads)

	if s.active == nil || s.store.ActiveThread(projectID) != "" {
		return nil
	}
	threadID, err := s.active.Get(ctx, projectID)
	if err != nil {
		s.logger.Warn("failed to restore active thread", zap.String("project_id", projectID), zap.Error(err))
		return nil
	}
	if _, ok := s.store.Thread(threadID); ok {
		s.store.SetActiveThread(projectID, threadID)
	}
	return nil
}

// Create creates a thread on the server and makes it active.
func (s *ThreadService) Create(ctx context.Context, projectID, title string) (*model.Thread, error) {
	thread, err := s.api.CreateThread(ctx, projectID, title)
	if err != nil {
		return nil, err
	}
	thread.ProjectID = projectID
	s.store.UpsertThread(*thread)
	s.SetActive(ctx, projectID, thread.ID)

	s.logger.Info("thread created", zap.String("project_id", projectID), zap.String("thread_id", thread.ID))
	return thread, nil
}

// EnsureActive returns the project's active thread, creating one first when
// there is none. Concurrent callers for one project share a single creation.
func (s *ThreadService) EnsureActive(ctx context.Context, projectID string) (string, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if id := s.store.ActiveThread(projectID); id != "" {
		return id, nil
	}
	thread, err := s.Create(ctx, projectID, "")
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (s *ThreadService) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.creating[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.creating[projectID] = lock
	}
	return lock
}

// Rename changes a thread title.
func (s *ThreadService) Rename(ctx context.Context, threadID, title string) error {
	updated, err := s.api.UpdateThread(ctx, threadID, title)
	if err != nil {
		return err
	}
	s.store.UpdateThread(threadID, func(t *model.Thread) {
		t.Title = model.StringPtr(title)
		if updated != nil && !updated.UpdatedAt.IsZero() {
			t.UpdatedAt = updated.UpdatedAt
		}
	})
	return nil
}

// Delete deletes a thread on the server and drops all local state for it.
// A thread with a send in flight is refused with ErrAlreadySending.
func (s *ThreadService) Delete(ctx context.Context, threadID string) error {
	if s.store.IsSending(threadID) {
		return ErrAlreadySending
	}
	if err := s.api.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	s.store.RemoveThread(threadID)
	if s.active != nil {
		if err := s.active.ForgetThread(ctx, threadID); err != nil {
			s.logger.Warn("failed to forget thread", zap.String("thread_id", threadID), zap.Error(err))
		}
	}
	return nil
}

// SetActive selects the project's active thread; "" clears it.
func (s *ThreadService) SetActive(ctx context.Context, projectID, threadID string) {
	s.store.SetActiveThread(projectID, threadID)
	if s.active == nil {
		return
	}
	if err := s.active.Set(ctx, projectID, threadID); err != nil {
		s.logger.Warn("failed to persist active thread", zap.String("project_id", projectID), zap.Error(err))
	}
}

// Active returns the project's active thread id, or "".
func (s *ThreadService) Active(projectID string) string {
	return s.store.ActiveThread(projectID)
}

// RequireActive returns the project's active thread, or ErrNoActiveThread.
func (s *ThreadService) RequireActive(projectID string) (string, error) {
	if id := s.store.ActiveThread(projectID); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("project %s: %w", projectID, ErrNoActiveThread)
}

// SyncMetadata recomputes a thread's message count, preview and last agent
// from its current message list.
func (s *ThreadService) SyncMetadata(threadID string) {
	messages := s.store.Messages(threadID)
	now := s.now()

	found := s.store.UpdateThread(threadID, func(t *model.Thread) {
		t.MessageCount = len(messages)
		t.LastMessage = nil
		if n := len(messages); n > 0 {
			t.LastMessage = model.StringPtr(preview(messages[n-1].Content))
		}
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role != model.RoleAssistant {
				continue
			}
			if name := messages[i].AgentName(); name != "" {
				t.LastAgentName = &name
			}
			break
		}
		t.UpdatedAt = now
	})
	if !found {
		s.logger.Debug("thread not in registry, metadata not synced", zap.String("thread_id", threadID))
		return
	}
	s.store.SortThreads(s.store.ProjectOf(threadID))
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return fmt.Sprintf("%s...", string(runes[:previewLength]))
}
