package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the session of a single tab in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	current     Session
	subscribers []func(Session)
}

func NewMemoryStore(initial Session) *MemoryStore {
	return &MemoryStore{current: initial}
}

func (s *MemoryStore) Current(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *MemoryStore) Merge(_ context.Context, patch Patch) (Session, error) {
	s.mu.Lock()
	s.current = s.current.Merge(patch)
	merged := s.current
	subscribers := append(([]func(Session))(nil), s.subscribers...)
	s.mu.Unlock()

	for _, notify := range subscribers {
		notify(merged)
	}
	return merged, nil
}

// Subscribe registers fn to receive every merged snapshot.
func (s *MemoryStore) Subscribe(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}
