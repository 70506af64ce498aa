package position

import (
	"context"
	"sync"

	"signal-relay/internal/model"
)

// MemoryStore is the default in-process Store. State is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]model.PositionState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]model.PositionState)}
}

func (s *MemoryStore) Get(_ context.Context, symbol string) (model.PositionState, bool, error) {
	s.mu.RLock()
	st, ok := s.m[symbol]
	s.mu.RUnlock()
	return st, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, symbol string, st model.PositionState) error {
	s.mu.Lock()
	s.m[symbol] = st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, symbol string, u model.PositionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[symbol]
	if !ok {
		return false, nil
	}
	u.Apply(&st)
	s.m[symbol] = st
	return true, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	n := len(s.m)
	s.mu.RUnlock()
	return n, nil
}
