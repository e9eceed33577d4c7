package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/transport"
)

func TestThreadService_LoadRestoresPersistedActive(t *testing.T) {
	f := newFixture()
	f.api.threads["p1"] = []model.Thread{{ID: "t1", ProjectID: "p1"}, {ID: "t2", ProjectID: "p1"}}
	require.NoError(t, f.active.Set(context.Background(), "p1", "t2"))

	require.NoError(t, f.threads.Load(context.Background(), "p1"))

	assert.Len(t, f.store.Threads("p1"), 2)
	assert.Equal(t, "t2", f.threads.Active("p1"))
}

func TestThreadService_LoadIgnoresStalePersistedActive(t *testing.T) {
	f := newFixture()
	f.api.threads["p1"] = []model.Thread{{ID: "t1", ProjectID: "p1"}}
	require.NoError(t, f.active.Set(context.Background(), "p1", "gone"))

	require.NoError(t, f.threads.Load(context.Background(), "p1"))
	assert.Empty(t, f.threads.Active("p1"))
}

func TestThreadService_DeleteClearsState(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Create(context.Background(), "p1", "Budget")
	require.NoError(t, err)
	f.store.AppendMessages(thread.ID, model.Message{ID: "m1"})

	require.NoError(t, f.threads.Delete(context.Background(), thread.ID))

	assert.Empty(t, f.store.Threads("p1"))
	assert.Empty(t, f.store.Messages(thread.ID))
	assert.Empty(t, f.threads.Active("p1"))
	persisted, _ := f.active.Get(context.Background(), "p1")
	assert.Empty(t, persisted)
	assert.Equal(t, []string{thread.ID}, f.api.deleted)
}

func TestThreadService_DeleteRefusedWhileSending(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Create(context.Background(), "p1", "Budget")
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	f.api.stream = func(_ context.Context, threadID string, _ *model.ChatRequest, h transport.Handlers) {
		close(started)
		<-release
		h.OnComplete(model.CompletePayload{Messages: serverMessages(threadID, "hi", "hello")})
	}

	done := make(chan error, 1)
	go func() {
		done <- f.messages.SendStreamingMessage(context.Background(), thread.ID, "agent", "hi", Attachments{})
	}()
	<-started

	require.ErrorIs(t, f.threads.Delete(context.Background(), thread.ID), ErrAlreadySending)
	assert.Empty(t, f.api.deleted)
	assert.False(t, f.store.BeginSend(thread.ID))

	close(release)
	require.NoError(t, <-done)
	_, ok := f.store.Thread(thread.ID)
	assert.True(t, ok)

	require.NoError(t, f.threads.Delete(context.Background(), thread.ID))
	assert.Empty(t, f.store.Messages(thread.ID))
}

func TestThreadService_RequireActive(t *testing.T) {
	f := newFixture()
	_, err := f.threads.RequireActive("p1")
	require.ErrorIs(t, err, ErrNoActiveThread)

	thread, err := f.threads.Create(context.Background(), "p1", "Budget")
	require.NoError(t, err)
	id, err := f.threads.RequireActive("p1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, id)
}

func TestThreadService_Rename(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Create(context.Background(), "p1", "")
	require.NoError(t, err)

	require.NoError(t, f.threads.Rename(context.Background(), thread.ID, "Q3 planning"))

	got, ok := f.store.Thread(thread.ID)
	require.True(t, ok)
	assert.Equal(t, "Q3 planning", got.DisplayTitle())
	assert.Equal(t, "Q3 planning", f.api.renamed[thread.ID])
}

func TestThreadService_SyncMetadata(t *testing.T) {
	f := newFixture()
	old := time.Now().Add(-time.Hour)
	f.store.SetThreads("p1", []model.Thread{
		{ID: "t1", ProjectID: "p1", UpdatedAt: old},
		{ID: "t2", ProjectID: "p1", UpdatedAt: old.Add(time.Minute)},
	})
	long := strings.Repeat("é", 120)
	f.store.ReplaceMessages("t1", serverMessages("t1", "question", long))

	f.threads.SyncMetadata("t1")

	threads := f.store.Threads("p1")
	require.Len(t, threads, 2)
	assert.Equal(t, "t1", threads[0].ID)
	assert.Equal(t, 2, threads[0].MessageCount)
	require.NotNil(t, threads[0].LastMessage)
	assert.Equal(t, strings.Repeat("é", 100)+"...", *threads[0].LastMessage)
	assert.True(t, threads[0].UpdatedAt.After(old))
}

func TestThreadService_SyncMetadataEmptyList(t *testing.T) {
	f := newFixture()
	preview := "old"
	f.store.SetThreads("p1", []model.Thread{{ID: "t1", ProjectID: "p1", LastMessage: &preview, MessageCount: 4}})
	f.store.ReplaceMessages("t1", nil)

	f.threads.SyncMetadata("t1")

	got, ok := f.store.Thread("t1")
	require.True(t, ok)
	assert.Zero(t, got.MessageCount)
	assert.Nil(t, got.LastMessage)
}
