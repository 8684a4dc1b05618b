// Package memorystore is an in-memory credential.Store for tests and
// headless runs where no platform keychain is available.
package memorystore

import (
	"context"
	"sync"
)

// Store holds at most one credential file in memory.
type Store struct {
	mu     sync.Mutex
	data   []byte
	stored bool
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.stored = true
	return nil
}

func (s *Store) Load(ctx context.Context) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stored {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
	s.stored = false
	return nil
}
