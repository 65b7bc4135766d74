package thumbnail

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const thumbnailColumns = `id, user_id, title, user_prompt, style, aspect_ratio, color_scheme, text_overlay, status, image_url, created_at, updated_at`

// PostgresStore reads and writes the thumbnails table created by the
// migrations package. Ids are UUIDs; callers must reject malformed ids before
// they reach the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, t Thumbnail) error {
	const q = `
INSERT INTO thumbnails (` + thumbnailColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, q,
		t.ID, t.UserID, t.Title, t.UserPrompt, t.Style, t.AspectRatio, t.ColorScheme,
		t.TextOverlay, string(t.Status), nullString(t.ImageURL), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert thumbnail: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Thumbnail, error) {
	const q = `SELECT ` + thumbnailColumns + ` FROM thumbnails WHERE id = $1`
	t, err := scanThumbnail(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thumbnail{}, ErrNotFound
		}
		return Thumbnail{}, fmt.Errorf("query thumbnail: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Thumbnail, error) {
	const q = `SELECT ` + thumbnailColumns + ` FROM thumbnails WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query thumbnails: %w", err)
	}
	defer rows.Close()

	out := make([]Thumbnail, 0)
	for rows.Next() {
		t, err := scanThumbnail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thumbnails: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM thumbnails WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete thumbnail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition relies on the status predicate so that concurrent completion
// signals cannot both succeed.
func (s *PostgresStore) Transition(ctx context.Context, id string, out Outcome, at time.Time) (bool, error) {
	var url *string
	if out.Status == StatusReady {
		url = &out.ImageURL
	}
	const q = `
UPDATE thumbnails
SET status = $2, image_url = $3, updated_at = $4
WHERE id = $1 AND status = 'pending'`
	res, err := s.db.ExecContext(ctx, q, id, string(out.Status), nullString(url), at)
	if err != nil {
		return false, fmt.Errorf("update thumbnail status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) PendingIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM thumbnails WHERE status = 'pending' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pending thumbnails: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending thumbnail: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending thumbnails: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThumbnail(row rowScanner) (Thumbnail, error) {
	var (
		t      Thumbnail
		status string
		url    sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.UserPrompt, &t.Style, &t.AspectRatio, &t.ColorScheme,
		&t.TextOverlay, &status, &url, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return Thumbnail{}, err
	}
	t.Status = Status(status)
	if url.Valid {
		v := url.String
		t.ImageURL = &v
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
