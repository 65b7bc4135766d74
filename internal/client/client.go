// Package client is the API consumer side of thumbnail-api. Authentication
// state is an immutable AuthState value that callers hold and replace; the
// client never keeps a mutable "current user" of its own.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"thumblify/thumbnail-api/internal/thumbnail"
)

var ErrLoginRequired = errors.New("login required")

var errStillPending = errors.New("thumbnail still pending")

type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthState is a snapshot; operations return a new value instead of
// modifying one.
type AuthState struct {
	Authenticated bool
	User          *User
}

func Anonymous() AuthState { return AuthState{} }

func authenticated(u User) AuthState {
	return AuthState{Authenticated: true, User: &u}
}

// APIError is a non-2xx response. Message is the server's {message} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type GenerateParams struct {
	Title       string `json:"title"`
	Prompt      string `json:"prompt,omitempty"`
	Style       string `json:"style,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ColorScheme string `json:"color_scheme,omitempty"`
	TextOverlay bool   `json:"text_overlay,omitempty"`
}

type Client struct {
	base    *url.URL
	http    *http.Client
	session *SessionFile
}

type Option func(*Client)

// WithHTTPClient replaces the transport client. Its Jar is replaced by the
// client's own cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

// WithSessionFile persists the session cookie across processes.
func WithSessionFile(f *SessionFile) Option {
	return func(c *Client) { c.session = f }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c.http.Jar = jar
	if c.session != nil {
		if err := c.session.Restore(jar, c.base); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Rehydrate asks the server who the stored session belongs to. A missing or
// expired session is the anonymous state, not an error.
func (c *Client) Rehydrate(ctx context.Context) (AuthState, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", nil, &out); err != nil {
		if isUnauthenticated(err) {
			return Anonymous(), nil
		}
		return Anonymous(), err
	}
	return authenticated(out.User), nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (AuthState, error) {
	return c.startSession(ctx, "/api/auth/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthState, error) {
	return c.startSession(ctx, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (AuthState, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return Anonymous(), err
	}
	if err := c.persist(); err != nil {
		return Anonymous(), err
	}
	return authenticated(out.User), nil
}

// Logout always ends in the anonymous state; the error reports whether the
// server confirmed it.
func (c *Client) Logout(ctx context.Context) (AuthState, error) {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if perr := c.persist(); err == nil {
		err = perr
	}
	return Anonymous(), err
}

// RequestGeneration returns ErrLoginRequired without contacting the server
// when state is anonymous.
func (c *Client) RequestGeneration(ctx context.Context, state AuthState, p GenerateParams) (thumbnail.Thumbnail, error) {
	if !state.Authenticated {
		return thumbnail.Thumbnail{}, ErrLoginRequired
	}
	var out struct {
		Thumbnail thumbnail.Thumbnail `json:"thumbnail"`
	}
	if err := c.authed(ctx, http.MethodPost, "/api/thumbnail/generate", p, &out); err != nil {
		return thumbnail.Thumbnail{}, err
	}
	return out.Thumbnail, nil
}

func (c *Client) Get(ctx context.Context, state AuthState, id string) (thumbnail.Thumbnail, error) {
	if !state.Authenticated {
		return thumbnail.Thumbnail{}, ErrLoginRequired
	}
	var out struct {
		Thumbnail thumbnail.Thumbnail `json:"thumbnail"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/user/thumbnail/"+url.PathEscape(id), nil, &out); err != nil {
		return thumbnail.Thumbnail{}, err
	}
	return out.Thumbnail, nil
}

func (c *Client) List(ctx context.Context, state AuthState) ([]thumbnail.Thumbnail, error) {
	if !state.Authenticated {
		return nil, ErrLoginRequired
	}
	var out struct {
		Thumbnails []thumbnail.Thumbnail `json:"thumbnails"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/user/thumbnails", nil, &out); err != nil {
		return nil, err
	}
	return out.Thumbnails, nil
}

func (c *Client) Delete(ctx context.Context, state AuthState, id string) error {
	if !state.Authenticated {
		return ErrLoginRequired
	}
	return c.authed(ctx, http.MethodDelete, "/api/thumbnail/"+url.PathEscape(id), nil, nil)
}

// WaitForThumbnail polls until the thumbnail is terminal or ctx ends. Server
// errors are retried; anything else stops the wait.
func (c *Client) WaitForThumbnail(ctx context.Context, state AuthState, id string, interval time.Duration) (thumbnail.Thumbnail, error) {
	if interval <= 0 {
		interval = time.Second
	}
	var last thumbnail.Thumbnail
	err := retry.Do(ctx, retry.NewConstant(interval), func(ctx context.Context) error {
		t, err := c.Get(ctx, state, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError {
				return retry.RetryableError(err)
			}
			return err
		}
		last = t
		if !t.Status.Terminal() {
			return retry.RetryableError(errStillPending)
		}
		return nil
	})
	if err != nil {
		return last, err
	}
	return last, nil
}

// authed is do for session-bound calls: a 401 becomes ErrLoginRequired so the
// caller drops back to the anonymous state.
func (c *Client) authed(ctx context.Context, method, path string, body, out any) error {
	err := c.do(ctx, method, path, body, out)
	if isUnauthenticated(err) {
		return fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
			apiErr.Message = msg.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) persist() error {
	if c.session == nil {
		return nil
	}
	return c.session.Save(c.http.Jar, c.base)
}

func isUnauthenticated(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
