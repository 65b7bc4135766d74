package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresUserStore reads and writes the auth_users table created by the
// migrations package.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresUserStore{db: db}, nil
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, name, email, password_hash, created_at FROM auth_users WHERE id = $1`
	return s.getOne(ctx, q, id)
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	if strings.TrimSpace(email) == "" {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, name, email, password_hash, created_at FROM auth_users WHERE email = $1`
	return s.getOne(ctx, q, email)
}

func (s *PostgresUserStore) getOne(ctx context.Context, q string, arg string) (User, error) {
	var u User
	if err := s.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query auth user: %w", err)
	}
	return u, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, user User) error {
	if user.ID == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, email, and password hash are required")
	}

	const q = `
INSERT INTO auth_users (id, name, email, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
