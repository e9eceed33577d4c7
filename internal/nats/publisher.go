package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const (
	publishQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// JetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// ChangeEvent is the payload published for each store change. It carries the
// state the change produced so consumers need not call back.
type ChangeEvent struct {
	store.Change
	Timestamp time.Time       `json:"timestamp"`
	Threads   []model.Thread  `json:"threads,omitempty"`
	Messages  []model.Message `json:"messages,omitempty"`
	Sending   *bool           `json:"sending,omitempty"`
	ActiveID  *string         `json:"activeThreadId,omitempty"`
	Error     *string         `json:"error,omitempty"`
}

// Publisher mirrors store changes to JetStream.
type Publisher struct {
	js     JetStreamPublisher
	store  *store.Store
	logger *logger.Logger
	queue  chan ChangeEvent
}

// NewPublisher creates a publisher for st.
func NewPublisher(js JetStreamPublisher, st *store.Store, log *logger.Logger) *Publisher {
	return &Publisher{
		js:     js,
		store:  st,
		logger: log.Named("publisher"),
		queue:  make(chan ChangeEvent, publishQueueSize),
	}
}

// Run publishes changes until ctx is done. Events that arrive while the queue
// is full are dropped; the next change on the same subject supersedes them.
func (p *Publisher) Run(ctx context.Context) {
	unsubscribe := p.store.Subscribe(func(c store.Change) {
		event := p.snapshot(c)
		select {
		case p.queue <- event:
		default:
			p.logger.Warn("change queue full, dropping event", zap.String("subject", ChangeSubject(c)))
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.queue:
			if err := p.publish(ctx, event); err != nil {
				p.logger.Warn("failed to publish change", zap.Error(err))
			}
		}
	}
}

// snapshot runs inside the store notification, so reads see exactly the
// state the change produced.
func (p *Publisher) snapshot(c store.Change) ChangeEvent {
	event := ChangeEvent{Change: c, Timestamp: time.Now().UTC()}
	switch c.Kind {
	case store.ChangeThreads:
		event.Threads = p.store.Threads(c.ProjectID)
	case store.ChangeMessages:
		event.Messages = p.store.Messages(c.ThreadID)
	case store.ChangeSending:
		sending := p.store.IsSending(c.ThreadID)
		event.Sending = &sending
	case store.ChangeActive:
		active := p.store.ActiveThread(c.ProjectID)
		event.ActiveID = &active
	case store.ChangeError:
		msg := p.store.LastError()
		event.Error = &msg
	}
	return event
}

func (p *Publisher) publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	subject := ChangeSubject(event.Change)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}
