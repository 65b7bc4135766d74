package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const sessionTokenBytes = 32

// SessionManager issues, validates and destroys server-held sessions. The
// token handed to the client is opaque; only its sha256 is stored.
type SessionManager struct {
	store   SessionStore
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewSessionManager(store SessionStore, ttl time.Duration) (*SessionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}
	return &SessionManager{store: store, ttl: ttl, nowFunc: time.Now}, nil
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

func (m *SessionManager) Create(ctx context.Context, userID string) (string, Session, error) {
	if userID == "" {
		return "", Session{}, fmt.Errorf("user id is required")
	}
	token, err := generateToken(sessionTokenBytes)
	if err != nil {
		return "", Session{}, fmt.Errorf("generate token: %w", err)
	}
	sessionID, err := generateToken(16)
	if err != nil {
		return "", Session{}, fmt.Errorf("generate session id: %w", err)
	}

	now := m.nowFunc().UTC()
	sess := Session{
		ID:            sessionID,
		TokenHash:     hashToken(token),
		UserID:        userID,
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return "", Session{}, fmt.Errorf("store session: %w", err)
	}
	return token, sess, nil
}

// Validate returns the live session for token. Every token that does not map
// to an authenticated, unexpired session yields ErrInvalidToken; other errors
// come from the store.
func (m *SessionManager) Validate(ctx context.Context, token string) (Session, error) {
	if !wellFormedToken(token) {
		return Session{}, ErrInvalidToken
	}
	hash := hashToken(token)
	sess, err := m.store.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if !sess.Authenticated || sess.UserID == "" {
		return Session{}, ErrInvalidToken
	}
	if sess.ExpiredAt(m.nowFunc()) {
		if err := m.store.DeleteByTokenHash(ctx, hash); err != nil {
			return Session{}, fmt.Errorf("delete expired session: %w", err)
		}
		return Session{}, ErrInvalidToken
	}
	return sess, nil
}

// Destroy is idempotent: unknown or malformed tokens are not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if !wellFormedToken(token) {
		return nil
	}
	if err := m.store.DeleteByTokenHash(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.nowFunc())
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wellFormedToken(token string) bool {
	if len(token) != hex.EncodedLen(sessionTokenBytes) {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func generateToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token length too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
