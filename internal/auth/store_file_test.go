package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileUserStorePersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth_users.json")

	s, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	u := User{ID: "u-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := s.Create(ctx, u); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	if !strings.Contains(string(raw), `"password_hash": "hash"`) {
		t.Fatalf("expected hash in state file, got %s", raw)
	}

	s2, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() reload error: %v", err)
	}
	got, err := s2.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error: %v", err)
	}
	if got.ID != "u-1" || got.PasswordHash != "hash" {
		t.Fatalf("unexpected reloaded user: %+v", got)
	}
}

func TestFileUserStoreRequiresPath(t *testing.T) {
	if _, err := NewFileUserStore("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}

// breakStateFile swaps the state file for a directory so every write fails.
func breakStateFile(t *testing.T, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("remove state file: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir in place of state file: %v", err)
	}
}

func TestFileUserStoreCreateRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth_users.json")

	s, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	breakStateFile(t, path)

	u := User{ID: "u-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := s.Create(ctx, u); err == nil {
		t.Fatalf("expected write error")
	}
	if _, err := s.GetByEmail(ctx, u.Email); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user to be rolled back, got %v", err)
	}
	if _, err := s.GetByID(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user id to be rolled back, got %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("restore state file: %v", err)
	}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() after recovery error: %v", err)
	}
}

func TestFileUserStoreDeleteRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth_users.json")

	s, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	u := User{ID: "u-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	breakStateFile(t, path)

	if err := s.Delete(ctx, u.ID); err == nil {
		t.Fatalf("expected write error")
	}
	if _, err := s.GetByEmail(ctx, u.Email); err != nil {
		t.Fatalf("expected user to survive failed delete, got %v", err)
	}
}

func TestRegisterFailedWriteLeavesNoAccount(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth_users.json")

	users, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	sessions, err := NewSessionManager(NewMemorySessionStore(""), time.Minute)
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	svc, err := NewService(ServiceConfig{Users: users, Sessions: sessions, Hasher: NewBcryptHasher(4)})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	breakStateFile(t, path)

	if _, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret123"); err == nil {
		t.Fatalf("expected Register() to fail")
	}
	if _, _, err := svc.Login(ctx, "ada@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after failed register, got %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("restore state file: %v", err)
	}
	if _, _, err := svc.Register(ctx, "Ada", "ada@example.com", "secret123"); err != nil {
		t.Fatalf("Register() retry error: %v", err)
	}
}
