package thread

import "sync"

// Store is the single owner of a State. Every mutation goes through
// Dispatch, which applies the reducer under a lock one action at a time.
// There is no package-level instance; whoever needs state holds a *Store.
type Store struct {
	mu        sync.RWMutex
	state     State
	nextSubID uint64
	subs      map[uint64]func(State)
}

// NewStore returns a store holding an empty state.
func NewStore() *Store {
	return &Store{
		state: NewState(),
		subs:  make(map[uint64]func(State)),
	}
}

// Dispatch applies actions in order as one atomic step and notifies
// subscribers with the resulting state. Subscribers run outside the lock.
func (st *Store) Dispatch(actions ...Action) State {
	st.mu.Lock()
	for _, a := range actions {
		st.state = Reduce(st.state, a)
	}
	next := st.state
	subs := make([]func(State), 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	st.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers a callback invoked after every dispatch with the new
// state. Returns a cancel func. Callbacks must treat the state as
// read-only.
func (st *Store) Subscribe(fn func(State)) func() {
	st.mu.Lock()
	st.nextSubID++
	id := st.nextSubID
	st.subs[id] = fn
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}

// Snapshot returns the current state. The value's maps are copy-on-write
// products of the reducer and must not be mutated by callers.
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}

// Items returns a copy of a thread's item list.
func (st *Store) Items(threadID string) []ConversationItem {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneItems(st.state.ItemsByThread[threadID])
}

// Threads returns a copy of a workspace's summary list.
func (st *Store) Threads(workspaceID string) []Summary {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneSummaries(st.state.ThreadsByWorkspace[workspaceID])
}

// StatusOf returns a thread's status flags, zero when unknown.
func (st *Store) StatusOf(threadID string) Status {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.StatusByThread[threadID]
}

// ActiveThread returns the workspace's active thread id, if any.
func (st *Store) ActiveThread(workspaceID string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.ActiveThread(workspaceID)
}

// Approvals returns a copy of the pending approval queue in arrival order.
func (st *Store) Approvals() []ApprovalRequest {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneApprovals(st.state.Approvals)
}

// HasThread reports whether the workspace lists the thread.
func (st *Store) HasThread(workspaceID, threadID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.HasThread(workspaceID, threadID)
}
