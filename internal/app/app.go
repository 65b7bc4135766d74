package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"thumblify/thumbnail-api/internal/audit"
	"thumblify/thumbnail-api/internal/auth"
	"thumblify/thumbnail-api/internal/auth/federated"
	"thumblify/thumbnail-api/internal/config"
	"thumblify/thumbnail-api/internal/httpserver"
	"thumblify/thumbnail-api/internal/migrations"
	"thumblify/thumbnail-api/internal/observability"
	"thumblify/thumbnail-api/internal/thumbnail"
)

const googleCallbackPath = "/api/auth/google/callback"

type App struct {
	cfg        config.Config
	log        *slog.Logger
	db         *sql.DB
	server     *httpserver.Server
	sessions   *auth.SessionManager
	thumbnails *thumbnail.Service
}

// New wires stores, services and the HTTP server. With DATABASE_URL set every
// store is Postgres and pending migrations are applied first; otherwise state
// lives in memory backed by JSON files.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Format, cfg.Log.Level, os.Stdout)
	metrics := observability.NewMetrics()

	var db *sql.DB
	fail := func(err error) (*App, error) {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	var (
		userStore    auth.UserStore
		sessionStore auth.SessionStore
		thumbStore   thumbnail.Store
		ready        func(context.Context) error
		err          error
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return fail(fmt.Errorf("ping database: %w", err))
		}

		schema, err := migrations.NewService(db)
		if err != nil {
			return fail(fmt.Errorf("create migration service: %w", err))
		}
		if err := schema.Up(ctx); err != nil {
			return fail(err)
		}
		if v, err := schema.Version(ctx); err == nil {
			logger.Info("database schema ready", "version", v)
		}
		ready = func(ctx context.Context) error {
			pending, err := schema.Pending(ctx)
			if err != nil {
				return err
			}
			if pending {
				return errors.New("database schema has pending migrations")
			}
			return nil
		}

		if userStore, err = auth.NewPostgresUserStore(db); err != nil {
			return fail(fmt.Errorf("create postgres user store: %w", err))
		}
		if sessionStore, err = auth.NewPostgresSessionStore(db); err != nil {
			return fail(fmt.Errorf("create postgres session store: %w", err))
		}
		if thumbStore, err = thumbnail.NewPostgresStore(db); err != nil {
			return fail(fmt.Errorf("create postgres thumbnail store: %w", err))
		}
	} else {
		if userStore, err = auth.NewFileUserStore(cfg.Auth.UserStateFile); err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
		memSessions := auth.NewMemorySessionStore(cfg.Auth.SessionStateFile)
		if err := memSessions.Load(); err != nil {
			return nil, fmt.Errorf("load auth session state: %w", err)
		}
		sessionStore = memSessions
		memThumbs := thumbnail.NewMemoryStore(cfg.Thumbnails.StateFile)
		if err := memThumbs.Load(); err != nil {
			return nil, fmt.Errorf("load thumbnail state: %w", err)
		}
		thumbStore = memThumbs
	}

	sessions, err := auth.NewSessionManager(sessionStore, cfg.Auth.SessionTTL)
	if err != nil {
		return fail(fmt.Errorf("create session manager: %w", err))
	}
	authService, err := auth.NewService(auth.ServiceConfig{
		Users:    userStore,
		Sessions: sessions,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
	})
	if err != nil {
		return fail(fmt.Errorf("create auth service: %w", err))
	}

	var generator thumbnail.Generator = thumbnail.PlaceholderGenerator{}
	if cfg.Thumbnails.GeneratorURL != "" {
		httpGen, err := thumbnail.NewHTTPGenerator(cfg.Thumbnails.GeneratorURL, cfg.Thumbnails.GeneratorAPIKey, nil)
		if err != nil {
			return fail(fmt.Errorf("create image generator: %w", err))
		}
		generator = httpGen
	} else {
		logger.Warn("GENERATOR_URL not set, rendering placeholder thumbnails")
	}

	var (
		blobs    thumbnail.BlobStore
		mediaDir string
	)
	if cfg.S3.Enabled() {
		s3Blobs, err := thumbnail.NewS3BlobStore(ctx, thumbnail.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return fail(fmt.Errorf("create s3 blob store: %w", err))
		}
		blobs = s3Blobs
	} else {
		fileBlobs, err := thumbnail.NewFileBlobStore(cfg.Media.Dir, cfg.Media.BaseURL)
		if err != nil {
			return fail(fmt.Errorf("create media blob store: %w", err))
		}
		blobs = fileBlobs
		mediaDir = fileBlobs.Dir()
	}

	thumbService, err := thumbnail.NewService(thumbnail.ServiceConfig{
		Store:      thumbStore,
		Generator:  generator,
		Blobs:      blobs,
		Workers:    cfg.Thumbnails.Workers,
		QueueSize:  cfg.Thumbnails.QueueSize,
		JobTimeout: cfg.Thumbnails.JobTimeout,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return fail(fmt.Errorf("create thumbnail service: %w", err))
	}

	var google httpserver.FederatedLogin
	if cfg.Google.Enabled() {
		ex, err := federated.NewOIDCExchanger(ctx, "google", federated.OIDCConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if err != nil {
			return fail(fmt.Errorf("create google exchanger: %w", err))
		}
		flow, err := federated.NewFlow(ex, federated.FlowConfig{
			StateSecret:  cfg.Google.StateSecret,
			SecureCookie: cfg.Auth.CookieSecure,
			CallbackPath: googleCallbackPath,
		})
		if err != nil {
			return fail(fmt.Errorf("create google login flow: %w", err))
		}
		google = flow
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:           authService,
		Thumbnails:     thumbService,
		Google:         google,
		Audit:          audit.NewLogger(cfg.AuditLogFile),
		Logger:         logger,
		Metrics:        metrics,
		Ready:          ready,
		Cookie:         httpserver.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure},
		ClientURL:      cfg.ClientURL,
		CallbackSecret: cfg.Thumbnails.CallbackSecret,
		MediaDir:       mediaDir,
	})

	return &App{
		cfg:        cfg,
		log:        logger,
		db:         db,
		server:     server,
		sessions:   sessions,
		thumbnails: thumbService,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()

	n, err := a.thumbnails.RecoverPending(ctx)
	if err != nil {
		return fmt.Errorf("recover pending thumbnails: %w", err)
	}
	if n > 0 {
		a.log.Warn("failed thumbnails left pending by previous run", "count", n)
	}

	// Workers outlive the signal context so queued jobs drain during shutdown.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	a.thumbnails.Start(workCtx)
	defer a.thumbnails.Stop()

	go a.sweepSessions(ctx)

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Auth.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.sessions.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					observability.LogError(a.log, "session sweep failed", err)
				}
				continue
			}
			if removed > 0 {
				a.log.Info("expired sessions removed", "count", removed)
			}
		}
	}
}
