package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/transport"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

// MessageAPI is the part of the REST boundary the message service uses.
type MessageAPI interface {
	GetMessages(ctx context.Context, threadID string) ([]model.Message, error)
	Chat(ctx context.Context, threadID string, req *model.ChatRequest) (*model.ChatResponse, error)
	ChatStream(ctx context.Context, threadID string, req *model.ChatRequest, h transport.Handlers)
}

// Attachments are the optional file inputs of a send.
type Attachments struct {
	IncludeFiles bool
	Files        []model.Attachment
}

// MessageService sends messages and keeps the per-thread message lists.
type MessageService struct {
	api     MessageAPI
	store   *store.Store
	threads *ThreadService
	logger  *logger.Logger
	now     func() time.Time
}

// NewMessageService creates a message service. threads receives metadata
// updates after each reconciliation and may be nil.
func NewMessageService(api MessageAPI, st *store.Store, threads *ThreadService, log *logger.Logger) *MessageService {
	return &MessageService{
		api:     api,
		store:   st,
		threads: threads,
		logger:  log.Named("messages"),
		now:     time.Now,
	}
}

// Load replaces the thread's messages with the server's list.
func (s *MessageService) Load(ctx context.Context, threadID string) error {
	messages, err := s.api.GetMessages(ctx, threadID)
	if err != nil {
		s.store.SetLastError(FormatError(err))
		return fmt.Errorf("failed to load messages: %w", err)
	}
	s.store.ReplaceMessages(threadID, messages)
	return nil
}

// SendStreamingMessage appends an optimistic user message and a loading
// assistant placeholder, then streams the reply into the placeholder. On
// completion the thread's list is replaced by the server's list. Transport
// failures end up on the placeholder and in the last error; they are not
// returned.
func (s *MessageService) SendStreamingMessage(ctx context.Context, threadID, agentID, content string, att Attachments) error {
	if !s.store.BeginSend(threadID) {
		return ErrAlreadySending
	}
	defer s.store.EndSend(threadID)

	log := s.logger.WithThread(s.store.ProjectOf(threadID), threadID)
	s.store.ClearLastError()

	now := s.now()
	userMsg := model.Message{
		ID:        model.NewProvisionalID(),
		ThreadID:  threadID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	placeholder := model.Message{
		ID:        model.NewProvisionalID(),
		ThreadID:  threadID,
		AgentID:   model.StringPtr(agentID),
		Role:      model.RoleAssistant,
		CreatedAt: now,
		IsLoading: true,
	}
	s.store.AppendMessages(threadID, userMsg, placeholder)

	// settleOnce also covers an API that returns without a terminal callback.
	var settleOnce sync.Once
	fail := func(err error) {
		msg := FormatError(err)
		s.store.UpdateMessage(threadID, placeholder.ID, func(m *model.Message) {
			m.IsLoading = false
			m.Error = msg
		})
		s.store.SetLastError(msg)
		metrics.RecordSend("stream", string(transport.KindOf(err)))
		log.Warn("streaming send failed", zap.String("kind", string(transport.KindOf(err))), zap.Error(err))
	}

	s.api.ChatStream(ctx, threadID, &model.ChatRequest{
		Message:      content,
		AgentID:      agentID,
		IncludeFiles: att.IncludeFiles,
		Files:        att.Files,
	}, transport.Handlers{
		OnChunk: func(text string) {
			s.store.UpdateMessage(threadID, placeholder.ID, func(m *model.Message) {
				m.Content += text
			})
		},
		OnComplete: func(payload model.CompletePayload) {
			settleOnce.Do(func() {
				s.store.ReplaceMessages(threadID, payload.Messages)
				if s.threads != nil {
					s.threads.SyncMetadata(threadID)
				}
				metrics.RecordSend("stream", "success")
				log.Debug("stream reconciled", zap.Int("messages", len(payload.Messages)))
			})
		},
		OnError: func(err *transport.APIError) {
			settleOnce.Do(func() { fail(err) })
		},
	})

	settleOnce.Do(func() {
		fail(&transport.APIError{Kind: transport.KindStream, Message: "stream ended before completion"})
	})
	return nil
}

// SendMessage is the buffered variant: only the user message is optimistic
// and the reply arrives in one response. A failure is attached to the user
// message and returned.
func (s *MessageService) SendMessage(ctx context.Context, threadID, agentID, content string, att Attachments) error {
	if !s.store.BeginSend(threadID) {
		return ErrAlreadySending
	}
	defer s.store.EndSend(threadID)

	log := s.logger.WithThread(s.store.ProjectOf(threadID), threadID)
	s.store.ClearLastError()

	userMsg := model.Message{
		ID:        model.NewProvisionalID(),
		ThreadID:  threadID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.store.AppendMessages(threadID, userMsg)

	resp, err := s.api.Chat(ctx, threadID, &model.ChatRequest{
		Message:      content,
		AgentID:      agentID,
		IncludeFiles: att.IncludeFiles,
		Files:        att.Files,
	})
	if err != nil {
		msg := FormatError(err)
		s.store.UpdateMessage(threadID, userMsg.ID, func(m *model.Message) {
			m.Error = msg
		})
		s.store.SetLastError(msg)
		metrics.RecordSend("buffered", string(transport.KindOf(err)))
		log.Warn("buffered send failed", zap.Error(err))
		return err
	}

	s.store.ReplaceMessages(threadID, resp.Messages)
	if s.threads != nil {
		s.threads.SyncMetadata(threadID)
	}
	metrics.RecordSend("buffered", "success")
	return nil
}
