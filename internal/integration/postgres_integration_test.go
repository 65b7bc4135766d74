package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"thumblify/thumbnail-api/internal/auth"
	"thumblify/thumbnail-api/internal/migrations"
	"thumblify/thumbnail-api/internal/thumbnail"
)

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}

	schema, err := migrations.NewService(db)
	if err != nil {
		t.Fatalf("migrations.NewService() error: %v", err)
	}
	if err := schema.Up(context.Background()); err != nil {
		t.Fatalf("migrations Up() error: %v", err)
	}
	return db
}

func newAuthService(t *testing.T, db *sql.DB) *auth.Service {
	t.Helper()
	users, err := auth.NewPostgresUserStore(db)
	if err != nil {
		t.Fatalf("NewPostgresUserStore() error: %v", err)
	}
	sessionStore, err := auth.NewPostgresSessionStore(db)
	if err != nil {
		t.Fatalf("NewPostgresSessionStore() error: %v", err)
	}
	sessions, err := auth.NewSessionManager(sessionStore, time.Minute)
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Users:    users,
		Sessions: sessions,
		Hasher:   auth.NewBcryptHasher(4),
	})
	if err != nil {
		t.Fatalf("auth.NewService() error: %v", err)
	}
	return svc
}

func TestMigrationsReportApplied(t *testing.T) {
	db := openTestPostgres(t)
	schema, err := migrations.NewService(db)
	if err != nil {
		t.Fatalf("migrations.NewService() error: %v", err)
	}

	pending, err := schema.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if pending {
		t.Fatalf("expected no pending migrations after Up")
	}
}

func TestPostgresAuthRoundTrip(t *testing.T) {
	db := openTestPostgres(t)
	svc := newAuthService(t, db)
	ctx := context.Background()

	email := fmt.Sprintf("itest_%d@example.com", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM auth_users WHERE email = $1", email)
	})

	user, token, err := svc.Register(ctx, "Integration", email, "Password123!")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if token == "" || user.Email != email {
		t.Fatalf("unexpected register result: %+v", user)
	}

	if _, _, err := svc.Register(ctx, "Integration", email, "other"); !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	_, loginToken, err := svc.Login(ctx, email, "Password123!")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	verified, err := svc.Verify(ctx, loginToken)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if verified.ID != user.ID {
		t.Fatalf("expected verify user %s, got %s", user.ID, verified.ID)
	}

	if err := svc.Logout(ctx, loginToken); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if err := svc.Logout(ctx, loginToken); err != nil {
		t.Fatalf("second Logout() error: %v", err)
	}
	if _, err := svc.Verify(ctx, loginToken); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
}

func TestPostgresThumbnailTransitionsOnce(t *testing.T) {
	db := openTestPostgres(t)
	authSvc := newAuthService(t, db)
	ctx := context.Background()

	email := fmt.Sprintf("itest_thumb_%d@example.com", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM auth_users WHERE email = $1", email)
	})
	user, _, err := authSvc.Register(ctx, "Thumb", email, "Password123!")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	store, err := thumbnail.NewPostgresStore(db)
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	th := thumbnail.Thumbnail{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Title:       "Integration",
		Style:       thumbnail.DefaultStyle,
		AspectRatio: thumbnail.DefaultAspectRatio,
		ColorScheme: thumbnail.DefaultColorScheme,
		Status:      thumbnail.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.Create(ctx, th); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := thumbnail.Failed()
			if i%2 == 0 {
				out = thumbnail.Ready(fmt.Sprintf("https://cdn.test/%d.png", i))
			}
			ok, err := store.Transition(ctx, th.ID, out, time.Now().UTC())
			if err != nil {
				t.Errorf("Transition() error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", applied)
	}

	got, err := store.Get(ctx, th.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Status.Terminal() {
		t.Fatalf("expected terminal status, got %s", got.Status)
	}

	if err := store.Delete(ctx, uuid.NewString(), th.ID); !errors.Is(err, thumbnail.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting as another user, got %v", err)
	}
	if err := store.Delete(ctx, user.ID, th.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
}
