package thumbnail

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore persists generated images and returns the location clients use to
// fetch them.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// BlobKey lays images out per user and day.
func BlobKey(userID, thumbnailID, contentType string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("thumbnails/%s/%04d/%02d/%02d/%s%s",
		userID, at.Year(), int(at.Month()), at.Day(), thumbnailID, extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// FileBlobStore writes images under a local directory that the HTTP server
// exposes at baseURL.
type FileBlobStore struct {
	dir     string
	baseURL string
}

func NewFileBlobStore(dir, baseURL string) (*FileBlobStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	return &FileBlobStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileBlobStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	full := filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("mkdir media dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("rename blob: %w", err)
	}
	return joinURL(s.baseURL, clean), nil
}

func (s *FileBlobStore) Dir() string {
	return s.dir
}

func joinURL(base, p string) string {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme == "" && !strings.HasPrefix(base, "/")) {
		return strings.TrimRight(base, "/") + p
	}
	u.Path = strings.TrimRight(u.Path, "/") + p
	return u.String()
}
