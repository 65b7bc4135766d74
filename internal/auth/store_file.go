package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileUserStore is an InMemoryUserStore mirrored to a JSON file after every
// write. It backs the server when no database is configured.
type FileUserStore struct {
	*InMemoryUserStore
	path string
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	s := &FileUserStore{
		InMemoryUserStore: NewInMemoryUserStore(),
		path:              path,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts user and writes the file under one lock. A failed write
// leaves the store as it was.
func (s *FileUserStore) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailTaken
	}
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	if err := s.persistLocked(); err != nil {
		delete(s.users, user.ID)
		delete(s.byEmail, user.Email)
		return err
	}
	return nil
}

func (s *FileUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, u.Email)
	if err := s.persistLocked(); err != nil {
		s.users[id] = u
		s.byEmail[u.Email] = id
		return err
	}
	return nil
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var decoded []storedUser
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode user store file: %w", err)
	}
	for _, su := range decoded {
		if strings.TrimSpace(su.ID) == "" || strings.TrimSpace(su.Email) == "" {
			continue
		}
		u := su.user()
		s.users[u.ID] = u
		s.byEmail[u.Email] = u.ID
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	out := make([]storedUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, newStoredUser(u))
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir user store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write user store file: %w", err)
	}
	return nil
}

// storedUser is the on-disk shape. User hides its hash from JSON, so the
// file needs its own type to keep it.
type storedUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

func newStoredUser(u User) storedUser {
	return storedUser{User: u, PasswordHash: u.PasswordHash}
}

func (su storedUser) user() User {
	u := su.User
	u.PasswordHash = su.PasswordHash
	return u
}
