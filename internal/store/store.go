// Package store holds the client-side conversation state: per-project thread
// lists, per-thread message lists, in-flight send flags and the active thread
// of each project.
//
// Every mutation replaces the affected map entry with a new slice; existing
// slices are never written to. Subscribers are notified after each mutation,
// in mutation order, and must not mutate the store from inside a callback.
package store

import (
	"slices"
	"sync"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// ChangeKind identifies which slice of state a Change touched.
type ChangeKind string

const (
	ChangeThreads  ChangeKind = "threads"
	ChangeMessages ChangeKind = "messages"
	ChangeSending  ChangeKind = "sending"
	ChangeActive   ChangeKind = "active"
	ChangeError    ChangeKind = "error"
)

// Change describes one mutation. Revision increases monotonically across all
// changes of a store.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	ProjectID string     `json:"projectId,omitempty"`
	ThreadID  string     `json:"threadId,omitempty"`
	Revision  uint64     `json:"revision"`
}

// Store is the conversation state container.
type Store struct {
	// dispatch serializes mutate-then-notify so subscribers see changes in
	// the order they were applied.
	dispatch sync.Mutex

	mu            sync.RWMutex
	threads       map[string][]model.Thread
	messages      map[string][]model.Message
	sending       map[string]bool
	active        map[string]string
	threadProject map[string]string
	revisions     map[string]uint64
	lastError     string
	revision      uint64

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		threads:       make(map[string][]model.Thread),
		messages:      make(map[string][]model.Message),
		sending:       make(map[string]bool),
		active:        make(map[string]string),
		threadProject: make(map[string]string),
		revisions:     make(map[string]uint64),
		subs:          make(map[int]func(Change)),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// mutate applies fn under the write lock and then notifies subscribers of the
// changes it recorded.
func (s *Store) mutate(fn func(rec *recorder)) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	rec := &recorder{store: s}
	fn(rec)
	s.mu.Unlock()

	if len(rec.changes) == 0 {
		return
	}

	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, c := range rec.changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

type recorder struct {
	store   *Store
	changes []Change
}

// record must be called with the write lock held.
func (r *recorder) record(kind ChangeKind, projectID, threadID string) {
	s := r.store
	s.revision++
	key := revisionKey(kind, projectID, threadID)
	s.revisions[key] = s.revision
	r.changes = append(r.changes, Change{
		Kind:      kind,
		ProjectID: projectID,
		ThreadID:  threadID,
		Revision:  s.revision,
	})
}

func revisionKey(kind ChangeKind, projectID, threadID string) string {
	switch kind {
	case ChangeThreads, ChangeActive:
		return string(kind) + ":" + projectID
	case ChangeError:
		return string(kind)
	default:
		return string(kind) + ":" + threadID
	}
}

// Revision returns the revision of the last change to the given slice of
// state, or 0 if it never changed. Equal revisions mean equal content.
func (s *Store) Revision(kind ChangeKind, projectID, threadID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[revisionKey(kind, projectID, threadID)]
}

// Threads returns a copy of the project's thread list.
func (s *Store) Threads(projectID string) []model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.threads[projectID])
}

// Thread looks up a thread by id.
func (s *Store) Thread(threadID string) (model.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projectID, ok := s.threadProject[threadID]
	if !ok {
		return model.Thread{}, false
	}
	for _, t := range s.threads[projectID] {
		if t.ID == threadID {
			return t, true
		}
	}
	return model.Thread{}, false
}

// ProjectOf returns the project a known thread belongs to.
func (s *Store) ProjectOf(threadID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadProject[threadID]
}

// Messages returns a copy of the thread's message list.
func (s *Store) Messages(threadID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[threadID])
}

// IsSending reports whether a send is in flight for the thread.
func (s *Store) IsSending(threadID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sending[threadID]
}

// ActiveThread returns the project's active thread id, or "".
func (s *Store) ActiveThread(projectID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[projectID]
}

// LastError returns the most recent user-facing error, or "".
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetThreads replaces a project's thread list.
func (s *Store) SetThreads(projectID string, threads []model.Thread) {
	s.mutate(func(rec *recorder) {
		next := make([]model.Thread, len(threads))
		for i, t := range threads {
			t.ProjectID = projectID
			next[i] = t
			s.threadProject[t.ID] = projectID
		}
		s.threads[projectID] = next
		rec.record(ChangeThreads, projectID, "")
	})
}

// UpsertThread replaces the thread with the same id, or prepends it.
func (s *Store) UpsertThread(thread model.Thread) {
	s.mutate(func(rec *recorder) {
		current := s.threads[thread.ProjectID]
		next := make([]model.Thread, 0, len(current)+1)
		found := false
		for _, t := range current {
			if t.ID == thread.ID {
				next = append(next, thread)
				found = true
				continue
			}
			next = append(next, t)
		}
		if !found {
			next = append([]model.Thread{thread}, next...)
		}
		s.threads[thread.ProjectID] = next
		s.threadProject[thread.ID] = thread.ProjectID
		rec.record(ChangeThreads, thread.ProjectID, "")
	})
}

// UpdateThread applies fn to a copy of the thread and stores the result. It
// reports whether the thread was found.
func (s *Store) UpdateThread(threadID string, fn func(t *model.Thread)) bool {
	found := false
	s.mutate(func(rec *recorder) {
		projectID, ok := s.threadProject[threadID]
		if !ok {
			return
		}
		current := s.threads[projectID]
		idx := slices.IndexFunc(current, func(t model.Thread) bool { return t.ID == threadID })
		if idx < 0 {
			return
		}
		next := slices.Clone(current)
		fn(&next[idx])
		next[idx].ID = threadID
		next[idx].ProjectID = projectID
		s.threads[projectID] = next
		found = true
		rec.record(ChangeThreads, projectID, "")
	})
	return found
}

// SortThreads orders a project's threads with the most recently updated first.
func (s *Store) SortThreads(projectID string) {
	s.mutate(func(rec *recorder) {
		next := slices.Clone(s.threads[projectID])
		slices.SortStableFunc(next, func(a, b model.Thread) int {
			return b.UpdatedAt.Compare(a.UpdatedAt)
		})
		s.threads[projectID] = next
		rec.record(ChangeThreads, projectID, "")
	})
}

// RemoveThread drops a thread and its messages, and clears it as the active
// thread of its project. An in-flight send flag stays until EndSend so the
// thread cannot gain a second concurrent send.
func (s *Store) RemoveThread(threadID string) {
	s.mutate(func(rec *recorder) {
		projectID := s.threadProject[threadID]
		if current, ok := s.threads[projectID]; ok {
			s.threads[projectID] = slices.DeleteFunc(slices.Clone(current), func(t model.Thread) bool {
				return t.ID == threadID
			})
			rec.record(ChangeThreads, projectID, "")
		}
		if _, ok := s.messages[threadID]; ok {
			delete(s.messages, threadID)
			rec.record(ChangeMessages, projectID, threadID)
		}
		delete(s.threadProject, threadID)
		if s.active[projectID] == threadID {
			delete(s.active, projectID)
			rec.record(ChangeActive, projectID, "")
		}
	})
}

// SetActiveThread marks threadID active for the project; "" clears it.
func (s *Store) SetActiveThread(projectID, threadID string) {
	s.mutate(func(rec *recorder) {
		if s.active[projectID] == threadID {
			return
		}
		if threadID == "" {
			delete(s.active, projectID)
		} else {
			s.active[projectID] = threadID
			if _, ok := s.threadProject[threadID]; !ok {
				s.threadProject[threadID] = projectID
			}
		}
		rec.record(ChangeActive, projectID, threadID)
	})
}

// ReplaceMessages replaces a thread's whole message list with an
// authoritative one. Loading flags are cleared and a nil list becomes empty.
func (s *Store) ReplaceMessages(threadID string, messages []model.Message) {
	s.mutate(func(rec *recorder) {
		next := make([]model.Message, len(messages))
		for i, m := range messages {
			m.IsLoading = false
			next[i] = m
		}
		s.messages[threadID] = next
		rec.record(ChangeMessages, s.threadProject[threadID], threadID)
	})
}

// AppendMessages appends messages to a thread's list.
func (s *Store) AppendMessages(threadID string, messages ...model.Message) {
	s.mutate(func(rec *recorder) {
		current := s.messages[threadID]
		next := make([]model.Message, 0, len(current)+len(messages))
		next = append(next, current...)
		next = append(next, messages...)
		s.messages[threadID] = next
		rec.record(ChangeMessages, s.threadProject[threadID], threadID)
	})
}

// UpdateMessage applies fn to a copy of one message and stores the result in
// a new list. It reports whether the message was found.
func (s *Store) UpdateMessage(threadID, messageID string, fn func(m *model.Message)) bool {
	found := false
	s.mutate(func(rec *recorder) {
		current := s.messages[threadID]
		idx := slices.IndexFunc(current, func(m model.Message) bool { return m.ID == messageID })
		if idx < 0 {
			return
		}
		next := slices.Clone(current)
		fn(&next[idx])
		s.messages[threadID] = next
		found = true
		rec.record(ChangeMessages, s.threadProject[threadID], threadID)
	})
	return found
}

// BeginSend marks a send in flight for the thread. It returns false, and
// changes nothing, when one already is.
func (s *Store) BeginSend(threadID string) bool {
	ok := false
	s.mutate(func(rec *recorder) {
		if s.sending[threadID] {
			return
		}
		s.sending[threadID] = true
		ok = true
		rec.record(ChangeSending, s.threadProject[threadID], threadID)
	})
	return ok
}

// EndSend clears the thread's in-flight flag.
func (s *Store) EndSend(threadID string) {
	s.mutate(func(rec *recorder) {
		if !s.sending[threadID] {
			return
		}
		delete(s.sending, threadID)
		rec.record(ChangeSending, s.threadProject[threadID], threadID)
	})
}

// SetLastError records a user-facing error message.
func (s *Store) SetLastError(msg string) {
	s.mutate(func(rec *recorder) {
		s.lastError = msg
		rec.record(ChangeError, "", "")
	})
}

// ClearLastError clears the user-facing error.
func (s *Store) ClearLastError() {
	s.mutate(func(rec *recorder) {
		if s.lastError == "" {
			return
		}
		s.lastError = ""
		rec.record(ChangeError, "", "")
	})
}
