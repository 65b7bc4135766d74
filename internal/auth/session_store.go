package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errSessionNotFound = errors.New("session not found")

type SessionStore interface {
	Create(ctx context.Context, sess Session) error
	// GetByTokenHash returns errSessionNotFound for unknown hashes.
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	// DeleteByTokenHash is a no-op for unknown hashes.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MemorySessionStore keeps sessions in a map. With a non-empty stateFile the
// map is written to disk after each change and can be reloaded on restart.
type MemorySessionStore struct {
	stateFile string

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore(stateFile string) *MemorySessionStore {
	return &MemorySessionStore{
		stateFile: stateFile,
		sessions:  make(map[string]Session),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenHash] = sess
	if err := s.persistLocked(); err != nil {
		delete(s.sessions, sess.TokenHash)
		return err
	}
	return nil
}

func (s *MemorySessionStore) GetByTokenHash(_ context.Context, tokenHash string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return Session{}, errSessionNotFound
	}
	return sess, nil
}

func (s *MemorySessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil
	}
	delete(s.sessions, tokenHash)
	if err := s.persistLocked(); err != nil {
		s.sessions[tokenHash] = sess
		return err
	}
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]Session)
	for hash, sess := range s.sessions {
		if sess.ExpiredAt(now) {
			removed[hash] = sess
			delete(s.sessions, hash)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		for hash, sess := range removed {
			s.sessions[hash] = sess
		}
		return 0, err
	}
	return int64(len(removed)), nil
}

func (s *MemorySessionStore) Load() error {
	if s.stateFile == "" {
		return nil
	}
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	state := make(map[string]Session)
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}

	s.mu.Lock()
	s.sessions = state
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir session state dir: %w", err)
	}
	b, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}
