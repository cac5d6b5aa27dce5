package conversation

import "sync"

// Registry owns the process-wide conversation state and provides per-user
// exclusion: while one update for a user is being processed, any other update
// for the same user blocks on Acquire. Distinct users never contend. Entries
// are a handful of bytes and are never evicted.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	mu    sync.Mutex
	state State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]*entry)}
}

// Acquire locks the exclusion scope for a user and returns a handle to their
// state. The caller must call Release on every exit path.
func (r *Registry) Acquire(chatID int64) *Handle {
	r.mu.Lock()
	e, ok := r.entries[chatID]
	if !ok {
		e = &entry{}
		r.entries[chatID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	return &Handle{e: e}
}

// Handle is an acquired, exclusive view of one user's conversation state.
type Handle struct {
	e *entry
}

// State returns the current state.
func (h *Handle) State() State {
	return h.e.state
}

// SetState replaces the current state.
func (h *Handle) SetState(s State) {
	h.e.state = s
}

// Release unlocks the user's exclusion scope.
func (h *Handle) Release() {
	h.e.mu.Unlock()
}
