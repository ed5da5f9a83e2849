// Package memstore provides an in-memory implementation of seen.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/herald/internal/seen"
)

// Store holds seen state in memory. Suitable for dev/testing and dry runs.
type Store struct {
	mu     sync.Mutex
	state  *seen.State // nil until Reset or Save
	locked bool
}

// New initializes an empty, uninitialized Store. Load fails until Reset is
// called, exactly like a fresh persistent store.
func New() *Store {
	return &Store{}
}

// NewInitialized returns a Store holding an empty state.
func NewInitialized() *Store {
	return &Store{state: seen.New()}
}

// Load returns a copy of the stored state.
func (s *Store) Load(_ context.Context) (*seen.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, seen.ErrNotInitialized
	}
	return s.state.Clone(), nil
}

// Save stores a copy of st if its revision is current.
func (s *Store) Save(_ context.Context, st *seen.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return seen.ErrNotInitialized
	}
	if st.Revision != s.state.Revision {
		return seen.ErrConflict
	}
	st.Revision++
	s.state = st.Clone()
	return nil
}

// Reset replaces the stored state with an empty one.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := seen.New()
	if s.state != nil {
		next.Revision = s.state.Revision + 1
	}
	s.state = next
	return nil
}

// Lock takes the single in-process lease.
func (s *Store) Lock(_ context.Context) (seen.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, seen.ErrLocked
	}
	s.locked = true
	return lease{s: s}, nil
}

type lease struct{ s *Store }

func (l lease) Release() error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.locked = false
	return nil
}
