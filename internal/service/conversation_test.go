package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/transport"
)

func TestController_UsageGateBlocksBeforeAnyMutation(t *testing.T) {
	f := newFixture()
	f.gate.canSend = false
	f.gate.status = "Global token limit exceeded."

	var changes []store.Change
	unsubscribe := f.store.Subscribe(func(c store.Change) { changes = append(changes, c) })
	defer unsubscribe()

	threadID, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hello", SendOptions{Stream: true})
	assert.Empty(t, threadID)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "Global token limit exceeded.", limitErr.Message)
	assert.EqualValues(t, 0, f.api.creates.Load())
	assert.EqualValues(t, 0, f.api.streams.Load())
	assert.Empty(t, f.store.Threads("p1"))
	assert.Equal(t, "Global token limit exceeded.", f.store.LastError())
	for _, c := range changes {
		assert.Equal(t, store.ChangeError, c.Kind)
	}
	assert.EqualValues(t, 0, f.gate.refreshes.Load())
}

func TestController_RefreshesUsageAfterEverySend(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture()
		f.api.stream = scripted([]string{"ok"}, serverMessages("thread-1", "hi", "ok"), nil)

		_, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{Stream: true})
		require.NoError(t, err)
		assert.EqualValues(t, 1, f.gate.refreshes.Load())
	})

	t.Run("stream failure", func(t *testing.T) {
		f := newFixture()
		f.api.stream = scripted(nil, nil, &transport.APIError{Kind: transport.KindNetwork})

		_, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{Stream: true})
		require.NoError(t, err)
		assert.EqualValues(t, 1, f.gate.refreshes.Load())
		assert.NotEmpty(t, f.store.LastError())
	})

	t.Run("buffered failure", func(t *testing.T) {
		f := newFixture()
		f.api.chat = func(context.Context, string, *model.ChatRequest) (*model.ChatResponse, error) {
			return nil, &transport.APIError{Kind: transport.KindServer, Message: "down"}
		}

		threadID, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{})
		require.Error(t, err)
		assert.Equal(t, "thread-1", threadID)
		assert.EqualValues(t, 1, f.gate.refreshes.Load())
	})

	t.Run("refresh survives caller cancellation", func(t *testing.T) {
		f := newFixture()
		ctx, cancel := context.WithCancel(context.Background())
		f.api.stream = func(ctx context.Context, _ string, _ *model.ChatRequest, h transport.Handlers) {
			cancel()
			h.OnError(transport.AsAPIError(ctx.Err()))
		}

		_, err := f.ctrl.SendMessage(ctx, "p1", "agent", "hi", SendOptions{Stream: true})
		require.NoError(t, err)
		assert.EqualValues(t, 1, f.gate.refreshes.Load())
	})
}

func TestController_CreatesThreadWhenNoneActive(t *testing.T) {
	f := newFixture()
	f.api.stream = func(_ context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
		assert.Equal(t, "thread-1", threadID)
		assert.Equal(t, "agent", req.AgentID)
		msgs := serverMessages(threadID, req.Message, "Sure thing, here is a long answer")
		msgs[1].Metadata = map[string]any{"agentName": "Planner"}
		h.OnComplete(model.CompletePayload{Messages: msgs})
	}

	threadID, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "  plan my week  ", SendOptions{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", threadID)

	assert.Equal(t, "thread-1", f.threads.Active("p1"))
	persisted, _ := f.active.Get(context.Background(), "p1")
	assert.Equal(t, "thread-1", persisted)

	thread, ok := f.store.Thread("thread-1")
	require.True(t, ok)
	assert.Equal(t, 2, thread.MessageCount)
	require.NotNil(t, thread.LastMessage)
	assert.Equal(t, "Sure thing, here is a long answer", *thread.LastMessage)
	require.NotNil(t, thread.LastAgentName)
	assert.Equal(t, "Planner", *thread.LastAgentName)

	msgs := f.store.Messages("thread-1")
	assert.Equal(t, "plan my week", msgs[0].Content)
}

func TestController_ThreadCreationFailureAddsNothing(t *testing.T) {
	f := newFixture()
	f.api.createErr = &transport.APIError{Kind: transport.KindServer, Message: "cannot create"}

	_, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{Stream: true})
	require.Error(t, err)

	assert.Empty(t, f.threads.Active("p1"))
	assert.Empty(t, f.store.Threads("p1"))
	assert.EqualValues(t, 0, f.api.streams.Load())
	assert.Equal(t, "cannot create", f.store.LastError())
	assert.EqualValues(t, 0, f.gate.refreshes.Load())
}

func TestController_Preconditions(t *testing.T) {
	f := newFixture()

	send := func(agentID, content string) error {
		_, err := f.ctrl.SendMessage(context.Background(), "p1", agentID, content, SendOptions{})
		return err
	}
	assert.ErrorIs(t, send("agent", "   "), ErrEmptyMessage)
	assert.ErrorIs(t, send("", "hi"), ErrMissingAgent)

	f.store.UpsertThread(model.Thread{ID: "t1", ProjectID: "p1"})
	f.store.SetActiveThread("p1", "t1")
	require.True(t, f.store.BeginSend("t1"))
	assert.ErrorIs(t, send("agent", "hi"), ErrAlreadySending)
	assert.Empty(t, f.store.Messages("t1"))
}

func TestController_AttachmentsAllowEmptyContent(t *testing.T) {
	f := newFixture()
	f.api.stream = func(_ context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
		require.Len(t, req.Files, 1)
		assert.True(t, req.IncludeFiles)
		h.OnComplete(model.CompletePayload{Messages: serverMessages(threadID, "", "read it")})
	}

	_, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "", SendOptions{
		Stream:       true,
		IncludeFiles: true,
		Files:        []model.Attachment{{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")}},
	})
	require.NoError(t, err)
}

func TestController_ConcurrentFirstSendsShareOneThread(t *testing.T) {
	f := newFixture()
	f.api.stream = func(_ context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
		h.OnComplete(model.CompletePayload{Messages: serverMessages(threadID, req.Message, "ok")})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{Stream: true})
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.api.creates.Load())
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrAlreadySending))
		}
	}
	assert.Len(t, f.store.Threads("p1"), 1)
}

func TestController_ReturnsThreadResolvedBeforeActiveChanges(t *testing.T) {
	f := newFixture()
	f.store.UpsertThread(model.Thread{ID: "t1", ProjectID: "p1"})
	f.store.UpsertThread(model.Thread{ID: "t2", ProjectID: "p1"})
	f.store.SetActiveThread("p1", "t1")

	f.api.stream = func(_ context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
		// Another client switches threads while this reply streams.
		f.threads.SetActive(context.Background(), "p1", "t2")
		h.OnComplete(model.CompletePayload{Messages: serverMessages(threadID, req.Message, "ok")})
	}

	threadID, err := f.ctrl.SendMessage(context.Background(), "p1", "agent", "hi", SendOptions{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "t1", threadID)
	assert.Equal(t, "t2", f.threads.Active("p1"))
	assert.Len(t, f.store.Messages("t1"), 2)
}
