package auth

import (
	"context"
	"sync"
)

type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// Create fails with ErrEmailTaken when the email is already present.
	Create(ctx context.Context, user User) error
}

type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *InMemoryUserStore) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailTaken
	}
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return nil
}

// Delete removes a user. It exists for administrative tooling and tests; the
// service never deletes users itself.
func (s *InMemoryUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, u.Email)
	return nil
}
