package nats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

type published struct {
	subject string
	event   ChangeEvent
}

type fakeJetStream struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	var event ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{subject: subject, event: event})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeJetStream) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func TestChangeSubject(t *testing.T) {
	assert.Equal(t, "chat.p1.t1.messages", ChangeSubject(store.Change{Kind: store.ChangeMessages, ProjectID: "p1", ThreadID: "t1"}))
	assert.Equal(t, "chat._._.error", ChangeSubject(store.Change{Kind: store.ChangeError}))
	assert.Equal(t, "chat.a_b.x_y.threads", ChangeSubject(store.Change{Kind: store.ChangeThreads, ProjectID: "a.b", ThreadID: "x*y"}))
	assert.Equal(t, "chat.p1.>", ProjectFilter("p1"))
}

func TestPublisher_MirrorsChanges(t *testing.T) {
	js := &fakeJetStream{}
	st := store.New()
	p := NewPublisher(js, st, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	go func() {
		close(started)
		p.Run(ctx)
	}()
	<-started

	// Run subscribes asynchronously; keep mutating until the first event lands.
	require.Eventually(t, func() bool {
		st.SetLastError("probe")
		st.ClearLastError()
		return len(js.snapshot()) > 0
	}, time.Second, 10*time.Millisecond)

	st.SetThreads("p1", []model.Thread{{ID: "t1"}})
	st.AppendMessages("t1", model.Message{ID: "m1", Content: "hi"})

	require.Eventually(t, func() bool {
		for _, m := range js.snapshot() {
			if m.subject == "chat.p1.t1.messages" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	for _, m := range js.snapshot() {
		switch m.subject {
		case "chat.p1._.threads":
			require.Len(t, m.event.Threads, 1)
			assert.Equal(t, "t1", m.event.Threads[0].ID)
		case "chat.p1.t1.messages":
			require.Len(t, m.event.Messages, 1)
			assert.Equal(t, "hi", m.event.Messages[0].Content)
			assert.NotZero(t, m.event.Revision)
		case "chat._._.error":
			assert.NotNil(t, m.event.Error)
		}
	}
}
