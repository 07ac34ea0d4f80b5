package journey

import (
	"context"
	"sync"
)

// Snapshotter persists journey states outside the process
type Snapshotter interface {
	Load(ctx context.Context, memberID string) (State, bool, error)
	Save(ctx context.Context, s State) error
}

type entry struct {
	// lock serializes writers for one member; a 1-slot channel lets waiters give up on ctx
	lock   chan struct{}
	state  State
	loaded bool
}

// Store maps member id to journey state with per-member writer locking.
// Writers for different members never contend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) entry(memberID string) *entry {
	s.mu.RLock()
	e := s.entries[memberID]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[memberID]; e == nil {
		e = &entry{lock: make(chan struct{}, 1)}
		s.entries[memberID] = e
	}
	return e
}

// Lock acquires the member's writer lock, waiting until ctx is done
func (s *Store) Lock(ctx context.Context, memberID string) (func(), error) {
	e := s.entry(memberID)
	select {
	case e.lock <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-e.lock }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a copy of the member's state
func (s *Store) Get(memberID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entries[memberID]
	if e == nil || !e.loaded {
		return State{}, false
	}
	return e.state.Clone(), true
}

// Put replaces the member's state. Callers must hold the member lock.
func (s *Store) Put(st State) {
	e := s.entry(st.MemberID)
	s.mu.Lock()
	e.state = st.Clone()
	e.loaded = true
	s.mu.Unlock()
}

// Members returns the ids with a stored state
func (s *Store) Members() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if e.loaded {
			out = append(out, id)
		}
	}
	return out
}
