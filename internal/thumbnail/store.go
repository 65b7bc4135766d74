package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type Store interface {
	Create(ctx context.Context, t Thumbnail) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Thumbnail, error)
	// ListByUser returns the user's thumbnails newest first.
	ListByUser(ctx context.Context, userID string) ([]Thumbnail, error)
	// Delete removes a thumbnail owned by userID, or returns ErrNotFound.
	Delete(ctx context.Context, userID, id string) error
	// Transition moves a pending thumbnail to out.Status. It reports false
	// without error when the thumbnail is gone or already terminal.
	Transition(ctx context.Context, id string, out Outcome, at time.Time) (bool, error)
	PendingIDs(ctx context.Context) ([]string, error)
}

// MemoryStore keeps thumbnails in a map. With a non-empty stateFile every
// change is written to disk and Load restores it on restart.
type MemoryStore struct {
	stateFile string

	mu    sync.RWMutex
	items map[string]Thumbnail
}

func NewMemoryStore(stateFile string) *MemoryStore {
	return &MemoryStore{
		stateFile: stateFile,
		items:     make(map[string]Thumbnail),
	}
}

func (s *MemoryStore) Create(_ context.Context, t Thumbnail) error {
	if t.ID == "" || t.UserID == "" {
		return fmt.Errorf("id and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[t.ID]; ok {
		return fmt.Errorf("thumbnail %s already exists", t.ID)
	}
	s.items[t.ID] = t
	if err := s.persistLocked(); err != nil {
		delete(s.items, t.ID)
		return err
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Thumbnail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[id]
	if !ok {
		return Thumbnail{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Thumbnail, error) {
	s.mu.RLock()
	out := make([]Thumbnail, 0)
	for _, t := range s.items {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	delete(s.items, id)
	if err := s.persistLocked(); err != nil {
		s.items[id] = t
		return err
	}
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, out Outcome, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[id]
	if !ok || prev.Status != StatusPending {
		return false, nil
	}

	next := prev
	next.Status = out.Status
	next.UpdatedAt = at
	if out.Status == StatusReady {
		url := out.ImageURL
		next.ImageURL = &url
	}
	s.items[id] = next
	if err := s.persistLocked(); err != nil {
		s.items[id] = prev
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Load() error {
	if s.stateFile == "" {
		return nil
	}
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read thumbnail state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	state := make(map[string]Thumbnail)
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("decode thumbnail state: %w", err)
	}

	s.mu.Lock()
	s.items = state
	s.mu.Unlock()
	return nil
}

// PendingIDs lists thumbnails that never reached a terminal status, e.g.
// because the process stopped while their jobs were queued.
func (s *MemoryStore) PendingIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, t := range s.items {
		if t.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir thumbnail state dir: %w", err)
	}
	b, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode thumbnail state: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o644); err != nil {
		return fmt.Errorf("write thumbnail state: %w", err)
	}
	return nil
}
