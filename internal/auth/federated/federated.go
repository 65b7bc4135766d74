// Package federated adapts an external OAuth2/OIDC provider to the auth
// service. It owns the redirect handshake and turns a provider callback into
// an auth.Identity; it never creates sessions itself.
package federated

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"thumblify/thumbnail-api/internal/auth"
)

const (
	stateCookieName = "thumb.oauth_state"
	stateTTL        = 10 * time.Minute
)

var (
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrMissingCode   = errors.New("missing authorization code")
	ErrProviderError = errors.New("provider returned an error")
)

// Exchanger is the provider-specific half of the handshake.
type Exchanger interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.Identity, error)
}

type FlowConfig struct {
	StateSecret  string
	SecureCookie bool
	// CallbackPath scopes the state cookie to the callback route.
	CallbackPath string
}

// Flow runs the redirect-based login. The CSRF state lives in a short-lived
// HttpOnly cookie holding a signed JWT, so the server keeps no per-login
// state between Begin and Complete.
type Flow struct {
	exchanger Exchanger
	secret    []byte
	secure    bool
	path      string
	nowFunc   func() time.Time
}

func NewFlow(ex Exchanger, cfg FlowConfig) (*Flow, error) {
	if ex == nil {
		return nil, fmt.Errorf("exchanger is required")
	}
	if len(cfg.StateSecret) < 16 {
		return nil, fmt.Errorf("state secret must be at least 16 bytes")
	}
	path := cfg.CallbackPath
	if path == "" {
		path = "/"
	}
	return &Flow{
		exchanger: ex,
		secret:    []byte(cfg.StateSecret),
		secure:    cfg.SecureCookie,
		path:      path,
		nowFunc:   time.Now,
	}, nil
}

func (f *Flow) Provider() string {
	return f.exchanger.Name()
}

type stateClaims struct {
	jwt.RegisteredClaims
	State string `json:"state"`
}

// Begin sets the state cookie and redirects the browser to the provider.
func (f *Flow) Begin(w http.ResponseWriter, r *http.Request) error {
	state, err := randomState()
	if err != nil {
		return fmt.Errorf("generate state: %w", err)
	}
	now := f.nowFunc()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
		State: state,
	}).SignedString(f.secret)
	if err != nil {
		return fmt.Errorf("sign state: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    signed,
		Path:     f.path,
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, f.exchanger.AuthCodeURL(state), http.StatusFound)
	return nil
}

// Complete validates the callback request and exchanges the code. The state
// cookie is cleared whatever the outcome.
func (f *Flow) Complete(w http.ResponseWriter, r *http.Request) (auth.Identity, error) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     f.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return auth.Identity{}, fmt.Errorf("%w: %s", ErrProviderError, e)
	}
	if err := f.checkState(r, q.Get("state")); err != nil {
		return auth.Identity{}, err
	}
	code := q.Get("code")
	if code == "" {
		return auth.Identity{}, ErrMissingCode
	}

	id, err := f.exchanger.Exchange(r.Context(), code)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	if id.Provider == "" {
		id.Provider = f.exchanger.Name()
	}
	return id, nil
}

func (f *Flow) checkState(r *http.Request, state string) error {
	if state == "" {
		return ErrStateMismatch
	}
	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" {
		return ErrStateMismatch
	}

	var claims stateClaims
	_, err = jwt.ParseWithClaims(c.Value, &claims, func(t *jwt.Token) (any, error) {
		return f.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(f.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	if claims.State != state {
		return ErrStateMismatch
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
