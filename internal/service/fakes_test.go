package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/internal/transport"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

type fakeAPI struct {
	mu sync.Mutex

	threads   map[string][]model.Thread
	createErr error
	creates   atomic.Int32
	streams   atomic.Int32
	chats     atomic.Int32
	deleted   []string
	renamed   map[string]string

	messages map[string][]model.Message

	stream func(ctx context.Context, threadID string, req *model.ChatRequest, h transport.Handlers)
	chat   func(ctx context.Context, threadID string, req *model.ChatRequest) (*model.ChatResponse, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		threads:  make(map[string][]model.Thread),
		messages: make(map[string][]model.Message),
		renamed:  make(map[string]string),
	}
}

func (f *fakeAPI) CreateThread(_ context.Context, projectID, title string) (*model.Thread, error) {
	n := f.creates.Add(1)
	if f.createErr != nil {
		return nil, f.createErr
	}
	now := time.Now()
	thread := model.Thread{
		ID:        fmt.Sprintf("thread-%d", n),
		ProjectID: projectID,
		Title:     model.StringPtr(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.mu.Lock()
	f.threads[projectID] = append(f.threads[projectID], thread)
	f.mu.Unlock()
	return &thread, nil
}

func (f *fakeAPI) ListThreads(_ context.Context, projectID string) ([]model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Thread(nil), f.threads[projectID]...), nil
}

func (f *fakeAPI) UpdateThread(_ context.Context, threadID, title string) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[threadID] = title
	return &model.Thread{ID: threadID, Title: model.StringPtr(title)}, nil
}

func (f *fakeAPI) DeleteThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, threadID)
	return nil
}

func (f *fakeAPI) GetMessages(_ context.Context, threadID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[threadID], nil
}

func (f *fakeAPI) Chat(ctx context.Context, threadID string, req *model.ChatRequest) (*model.ChatResponse, error) {
	f.chats.Add(1)
	return f.chat(ctx, threadID, req)
}

func (f *fakeAPI) ChatStream(ctx context.Context, threadID string, req *model.ChatRequest, h transport.Handlers) {
	f.streams.Add(1)
	f.stream(ctx, threadID, req, h)
}

// scripted returns a stream func that emits chunks then completes with
// messages, or fails with errAt when it is non-nil.
func scripted(chunks []string, messages []model.Message, errAt *transport.APIError) func(context.Context, string, *model.ChatRequest, transport.Handlers) {
	return func(_ context.Context, _ string, _ *model.ChatRequest, h transport.Handlers) {
		for _, c := range chunks {
			h.OnChunk(c)
		}
		if errAt != nil {
			h.OnError(errAt)
			return
		}
		h.OnComplete(model.CompletePayload{Messages: messages})
	}
}

type fakeGate struct {
	canSend   bool
	status    string
	refreshes atomic.Int32
}

func (g *fakeGate) CanSend() bool         { return g.canSend }
func (g *fakeGate) StatusMessage() string { return g.status }
func (g *fakeGate) Refresh(context.Context) error {
	g.refreshes.Add(1)
	return nil
}

type fakeActive struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeActive() *fakeActive {
	return &fakeActive{values: make(map[string]string)}
}

func (a *fakeActive) Get(_ context.Context, projectID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.values[projectID], nil
}

func (a *fakeActive) Set(_ context.Context, projectID, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if threadID == "" {
		delete(a.values, projectID)
		return nil
	}
	a.values[projectID] = threadID
	return nil
}

func (a *fakeActive) ForgetThread(_ context.Context, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p, id := range a.values {
		if id == threadID {
			delete(a.values, p)
		}
	}
	return nil
}

type fixture struct {
	api      *fakeAPI
	gate     *fakeGate
	active   *fakeActive
	store    *store.Store
	threads  *ThreadService
	messages *MessageService
	ctrl     *Controller
}

func newFixture() *fixture {
	api := newFakeAPI()
	gate := &fakeGate{canSend: true}
	active := newFakeActive()
	st := store.New()
	log := logger.NewNop()
	threads := NewThreadService(api, st, active, log)
	messages := NewMessageService(api, st, threads, log)
	return &fixture{
		api:      api,
		gate:     gate,
		active:   active,
		store:    st,
		threads:  threads,
		messages: messages,
		ctrl:     NewController(threads, messages, gate, st, log),
	}
}

func serverMessages(threadID string, contents ...string) []model.Message {
	out := make([]model.Message, 0, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			ThreadID:  threadID,
			Role:      role,
			Content:   c,
			CreatedAt: time.Now(),
		})
	}
	return out
}
