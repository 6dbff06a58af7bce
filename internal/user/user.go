// Package user holds the signed-in user's identity as seen by the UI.
package user

import (
	"context"
	"sync"
)

type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	AvatarID  string   `json:"avatarId,omitempty"`
	Groups    []string `json:"groups"`
}

// Store receives the user once per successful authorization.
type Store interface {
	SetUser(ctx context.Context, u User) error
	Current() (User, bool)
}

type MemoryStore struct {
	mu      sync.RWMutex
	current *User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SetUser(_ context.Context, u User) error {
	u.Groups = append([]string(nil), u.Groups...)
	s.mu.Lock()
	s.current = &u
	s.mu.Unlock()
	return nil
}

// Current returns the stored user and whether one was set.
func (s *MemoryStore) Current() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return User{}, false
	}
	u := *s.current
	u.Groups = append([]string(nil), u.Groups...)
	return u, true
}
