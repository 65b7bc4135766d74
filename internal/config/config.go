package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP         HTTPConfig
	DatabaseURL  string
	Auth         AuthConfig
	Google       GoogleConfig
	ClientURL    string
	Thumbnails   ThumbnailConfig
	Media        MediaConfig
	S3           S3Config
	AuditLogFile string
	Log          LogConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	SessionTTL       time.Duration
	SessionStateFile string
	UserStateFile    string
	BcryptCost       int
	CookieName       string
	CookieSecure     bool
	SweepInterval    time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	StateSecret  string
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

type ThumbnailConfig struct {
	StateFile       string
	Workers         int
	QueueSize       int
	JobTimeout      time.Duration
	GeneratorURL    string
	GeneratorAPIKey string
	CallbackSecret  string
}

type MediaConfig struct {
	Dir     string
	BaseURL string
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

type LogConfig struct {
	Format string
	Level  string
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file, its keys (the lower-cased variable names, e.g. http_addr) fill
// in anything the environment leaves unset.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            src.str("HTTP_ADDR", ":8080"),
			ReadTimeout:     src.seconds("HTTP_READ_TIMEOUT_SEC", 10),
			WriteTimeout:    src.seconds("HTTP_WRITE_TIMEOUT_SEC", 15),
			ShutdownTimeout: src.seconds("HTTP_SHUTDOWN_TIMEOUT_SEC", 20),
		},
		DatabaseURL: src.str("DATABASE_URL", ""),
		Auth: AuthConfig{
			SessionTTL:       src.seconds("AUTH_SESSION_TTL_SEC", 7*24*3600),
			SessionStateFile: src.str("AUTH_SESSION_STATE_FILE", "./data/auth_sessions.json"),
			UserStateFile:    src.str("AUTH_USER_STATE_FILE", "./data/auth_users.json"),
			BcryptCost:       src.int("AUTH_BCRYPT_COST", 10),
			CookieName:       src.str("AUTH_COOKIE_NAME", "thumb.sid"),
			CookieSecure:     src.bool("AUTH_COOKIE_SECURE", false),
			SweepInterval:    src.seconds("AUTH_SESSION_SWEEP_SEC", 600),
		},
		Google: GoogleConfig{
			ClientID:     src.str("GOOGLE_CLIENT_ID", ""),
			ClientSecret: src.str("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  src.str("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
			StateSecret:  src.str("OAUTH_STATE_SECRET", ""),
		},
		ClientURL: src.str("CLIENT_URL", "http://localhost:5173"),
		Thumbnails: ThumbnailConfig{
			StateFile:       src.str("THUMBNAIL_STATE_FILE", "./data/thumbnails.json"),
			Workers:         src.int("THUMBNAIL_WORKERS", 2),
			QueueSize:       src.int("THUMBNAIL_QUEUE_SIZE", 64),
			JobTimeout:      src.seconds("THUMBNAIL_JOB_TIMEOUT_SEC", 120),
			GeneratorURL:    src.str("GENERATOR_URL", ""),
			GeneratorAPIKey: src.str("GENERATOR_API_KEY", ""),
			CallbackSecret:  src.str("CALLBACK_SECRET", ""),
		},
		Media: MediaConfig{
			Dir:     src.str("MEDIA_DIR", "./data/media"),
			BaseURL: src.str("MEDIA_BASE_URL", "/media"),
		},
		S3: S3Config{
			Bucket:        src.str("S3_BUCKET", ""),
			Region:        src.str("S3_REGION", "us-east-1"),
			Endpoint:      src.str("S3_ENDPOINT", ""),
			AccessKey:     src.str("S3_ACCESS_KEY", ""),
			SecretKey:     src.str("S3_SECRET_KEY", ""),
			PublicBaseURL: src.str("S3_PUBLIC_BASE_URL", ""),
		},
		AuditLogFile: src.str("AUDIT_LOG_FILE", "./data/audit.log"),
		Log: LogConfig{
			Format: src.str("LOG_FORMAT", "json"),
			Level:  src.str("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if cfg.Auth.SessionStateFile == "" {
		return fmt.Errorf("AUTH_SESSION_STATE_FILE must not be empty")
	}
	if cfg.Auth.UserStateFile == "" {
		return fmt.Errorf("AUTH_USER_STATE_FILE must not be empty")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Auth.CookieName == "" {
		return fmt.Errorf("AUTH_COOKIE_NAME must not be empty")
	}
	if cfg.Auth.SweepInterval <= 0 {
		return fmt.Errorf("AUTH_SESSION_SWEEP_SEC must be > 0")
	}
	if cfg.Google.Enabled() {
		if cfg.Google.ClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
		}
		if cfg.Google.RedirectURL == "" {
			return fmt.Errorf("GOOGLE_REDIRECT_URL is required when GOOGLE_CLIENT_ID is set")
		}
		if len(cfg.Google.StateSecret) < 16 {
			return fmt.Errorf("OAUTH_STATE_SECRET must be at least 16 bytes when GOOGLE_CLIENT_ID is set")
		}
	}
	if cfg.ClientURL == "" {
		return fmt.Errorf("CLIENT_URL must not be empty")
	}
	if cfg.Thumbnails.StateFile == "" {
		return fmt.Errorf("THUMBNAIL_STATE_FILE must not be empty")
	}
	if cfg.Thumbnails.Workers <= 0 {
		return fmt.Errorf("THUMBNAIL_WORKERS must be > 0")
	}
	if cfg.Thumbnails.QueueSize <= 0 {
		return fmt.Errorf("THUMBNAIL_QUEUE_SIZE must be > 0")
	}
	if cfg.Thumbnails.JobTimeout <= 0 {
		return fmt.Errorf("THUMBNAIL_JOB_TIMEOUT_SEC must be > 0")
	}
	if !cfg.S3.Enabled() && cfg.Media.Dir == "" {
		return fmt.Errorf("MEDIA_DIR must not be empty when S3_BUCKET is unset")
	}
	if cfg.AuditLogFile == "" {
		return fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}
	return nil
}

// source resolves a key from the environment first, then the optional file.
type source struct {
	k *koanf.Koanf
}

func newSource(path string) (source, error) {
	if strings.TrimSpace(path) == "" {
		return source{}, nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return source{}, fmt.Errorf("load config file %s: %w", path, err)
	}
	return source{k: k}, nil
}

func (s source) str(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	if s.k != nil {
		if val := s.k.String(strings.ToLower(key)); val != "" {
			return val
		}
	}
	return fallback
}

func (s source) int(key string, fallback int) int {
	val := s.str(key, "")
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) bool(key string, fallback bool) bool {
	val := s.str(key, "")
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func (s source) seconds(key string, fallback int) time.Duration {
	return time.Duration(s.int(key, fallback)) * time.Second
}
