package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

func (s *PostgresSessionStore) Create(ctx context.Context, sess Session) error {
	const q = `
INSERT INTO auth_sessions (token_hash, session_id, user_id, authenticated, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, q, sess.TokenHash, sess.ID, sess.UserID, sess.Authenticated, sess.CreatedAt, sess.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	const q = `
SELECT token_hash, session_id, user_id, authenticated, created_at, expires_at
FROM auth_sessions WHERE token_hash = $1`
	var sess Session
	err := s.db.QueryRowContext(ctx, q, tokenHash).
		Scan(&sess.TokenHash, &sess.ID, &sess.UserID, &sess.Authenticated, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, errSessionNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
