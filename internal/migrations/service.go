// Package migrations owns the Postgres schema. SQL files are embedded in the
// binary and applied with goose.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const migrationsDir = "sql"

type FileInfo struct {
	Name     string `json:"name"`
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
}

type Status struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
	Applied bool   `json:"applied"`
}

// Seams for tests.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDBVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// goose keeps its FS and dialect in package globals.
var gooseSetup sync.Once

type Service struct {
	db   *sql.DB
	fsys fs.FS
}

func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Service{db: db, fsys: embedded}, nil
}

// List returns the embedded migrations in version order.
func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := versionOf(e.Name())
		if err != nil {
			return nil, err
		}
		b, err := fs.ReadFile(s.fsys, path.Join(migrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(b)
		out = append(out, FileInfo{Name: e.Name(), Version: version, Checksum: hex.EncodeToString(sum[:])})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies every pending migration.
func (s *Service) Up(ctx context.Context) error {
	var setupErr error
	gooseSetup.Do(func() {
		goose.SetBaseFS(embedded)
		setupErr = goose.SetDialect("postgres")
	})
	if setupErr != nil {
		return fmt.Errorf("configure goose: %w", setupErr)
	}
	if err := gooseUpContext(ctx, s.db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Service) Version(ctx context.Context) (int64, error) {
	v, err := gooseDBVersion(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Status reports which embedded migrations the database has applied.
func (s *Service) Status(ctx context.Context) ([]Status, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	current, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		out = append(out, Status{Name: f.Name, Version: f.Version, Applied: f.Version <= current})
	}
	return out, nil
}

// Pending reports whether any embedded migration is newer than the database.
func (s *Service) Pending(ctx context.Context) (bool, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	for _, st := range status {
		if !st.Applied {
			return true, nil
		}
	}
	return false, nil
}

func versionOf(name string) (int64, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s has no version prefix", name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration %s has invalid version: %w", name, err)
	}
	return v, nil
}
