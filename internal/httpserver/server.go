package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"thumblify/thumbnail-api/internal/audit"
	"thumblify/thumbnail-api/internal/auth"
	"thumblify/thumbnail-api/internal/config"
	"thumblify/thumbnail-api/internal/observability"
	"thumblify/thumbnail-api/internal/thumbnail"
)

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (auth.PublicUser, string, error)
	Login(ctx context.Context, email, password string) (auth.PublicUser, string, error)
	LoginWithFederatedIdentity(ctx context.Context, id auth.Identity) (auth.PublicUser, string, error)
	Logout(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (auth.PublicUser, error)
	SessionTTL() time.Duration
}

type ThumbnailService interface {
	RequestGeneration(ctx context.Context, userID string, p thumbnail.Params) (thumbnail.Thumbnail, error)
	Get(ctx context.Context, userID, id string) (thumbnail.Thumbnail, error)
	List(ctx context.Context, userID string) ([]thumbnail.Thumbnail, error)
	Delete(ctx context.Context, userID, id string) error
	Complete(ctx context.Context, id string, out thumbnail.Outcome) (bool, error)
}

// FederatedLogin is the redirect half of a third-party login.
type FederatedLogin interface {
	Provider() string
	Begin(w http.ResponseWriter, r *http.Request) error
	Complete(w http.ResponseWriter, r *http.Request) (auth.Identity, error)
}

type AuditLogger interface {
	Record(e audit.Event) error
}

type CookieConfig struct {
	Name   string
	Secure bool
}

type Deps struct {
	Auth       AuthService
	Thumbnails ThumbnailService
	// Google is nil when Google login is not configured.
	Google  FederatedLogin
	Audit   AuditLogger
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Ready reports whether dependencies such as the schema are usable.
	Ready          func(ctx context.Context) error
	Cookie         CookieConfig
	ClientURL      string
	CallbackSecret string
	// MediaDir is served under /media/ when set.
	MediaDir string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// NewHandler builds the full middleware chain around the router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Cookie.Name == "" {
		deps.Cookie.Name = "thumb.sid"
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				deps.Logger.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	if deps.MediaDir != "" {
		r.PathPrefix("/media/").Handler(
			http.StripPrefix("/media/", noDirListing(http.FileServer(http.Dir(deps.MediaDir)))),
		).Methods(http.MethodGet, http.MethodHead)
	}

	api := r.PathPrefix("/api").Subrouter()
	registerAuthHandlers(api.PathPrefix("/auth").Subrouter(), deps)
	registerThumbnailHandlers(api, deps)
	registerCallbackHandlers(r, deps)

	return corsMiddleware(deps.ClientURL, loggingMiddleware(deps.Logger, r))
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// metricsMiddleware labels requests by route template, so it must run inside
// the router.
func metricsMiddleware(m *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.ObserveRequest(route, r.Method, rec.status)
		})
	}
}

// corsMiddleware admits the single browser client origin with credentials.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" && r.Header.Get("Origin") == origin {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, logger *slog.Logger, r *http.Request, e audit.Event) {
	if a == nil {
		return
	}
	e.RequestID = requestIDFromContext(r.Context())
	e.IP = clientIP(r)
	if err := a.Record(e); err != nil {
		logger.Warn("audit record failed", "action", e.Action, "error", err)
	}
}
