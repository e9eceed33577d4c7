// Package view exposes read-only, derived views of the conversation state for
// rendering layers, plus a change feed to drive re-renders.
package view

import (
	"context"
	"sync"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/store"
)

const watchBuffer = 64

// UsageSource provides the usage banner state.
type UsageSource interface {
	Snapshot() *model.UsageSnapshot
	CanSend() bool
	StatusMessage() string
}

// Usage is the usage banner state.
type Usage struct {
	Snapshot *model.UsageSnapshot `json:"snapshot"`
	CanSend  bool                 `json:"canSend"`
	Message  string               `json:"message,omitempty"`
}

// Filter selects which changes Watch delivers. Empty fields match anything.
// A project filter drops thread changes whose project is unknown.
type Filter struct {
	ProjectID string
	ThreadID  string
	Kinds     []store.ChangeKind
}

func (f Filter) match(c store.Change) bool {
	if f.ProjectID != "" && c.ProjectID != f.ProjectID && (c.ProjectID != "" || c.ThreadID != "") {
		return false
	}
	if f.ThreadID != "" && c.ThreadID != "" && c.ThreadID != f.ThreadID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == c.Kind {
			return true
		}
	}
	return false
}

// Bindings derives view state from a store and usage source.
type Bindings struct {
	store *store.Store
	usage UsageSource
}

// New creates bindings. usage may be nil.
func New(st *store.Store, usage UsageSource) *Bindings {
	return &Bindings{store: st, usage: usage}
}

// Threads returns a copy of a project's thread list.
func (b *Bindings) Threads(projectID string) []model.Thread {
	return b.store.Threads(projectID)
}

// ActiveThread returns the active thread of a project, if any.
func (b *Bindings) ActiveThread(projectID string) (model.Thread, bool) {
	id := b.store.ActiveThread(projectID)
	if id == "" {
		return model.Thread{}, false
	}
	return b.store.Thread(id)
}

// Messages returns a thread's messages, including any pending placeholder.
func (b *Bindings) Messages(threadID string) []model.Message {
	return b.store.Messages(threadID)
}

// ProjectOf returns the project of a known thread, or "".
func (b *Bindings) ProjectOf(threadID string) string {
	return b.store.ProjectOf(threadID)
}

// IsSending reports whether a send is in flight for the thread.
func (b *Bindings) IsSending(threadID string) bool {
	return b.store.IsSending(threadID)
}

// LastError returns the most recent user-facing error, or "".
func (b *Bindings) LastError() string {
	return b.store.LastError()
}

// Usage returns the usage banner state. Without a usage source sending is
// always allowed.
func (b *Bindings) Usage() Usage {
	if b.usage == nil {
		return Usage{CanSend: true}
	}
	return Usage{
		Snapshot: b.usage.Snapshot(),
		CanSend:  b.usage.CanSend(),
		Message:  b.usage.StatusMessage(),
	}
}

// Watch streams matching changes until ctx is done. A slow reader drops
// changes rather than stalling the store; Revision tells it what it missed.
func (b *Bindings) Watch(ctx context.Context, filter Filter) <-chan store.Change {
	ch := make(chan store.Change, watchBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe := b.store.Subscribe(func(c store.Change) {
		if !filter.match(c) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- c:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
