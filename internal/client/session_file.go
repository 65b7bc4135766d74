package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// SessionFile keeps the cookies issued for one server in a private JSON file.
type SessionFile struct {
	path string
}

func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type sessionState struct {
	BaseURL string         `json:"base_url"`
	Cookies []storedCookie `json:"cookies"`
}

// Restore loads saved cookies into jar. A missing file, or one saved for a
// different server, leaves the jar empty.
func (f *SessionFile) Restore(jar http.CookieJar, base *url.URL) error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read session file: %w", err)
	}
	var st sessionState
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode session file: %w", err)
	}
	if st.BaseURL != base.String() {
		return nil
	}
	cookies := make([]*http.Cookie, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return nil
}

func (f *SessionFile) Save(jar http.CookieJar, base *url.URL) error {
	st := sessionState{BaseURL: base.String()}
	for _, c := range jar.Cookies(base) {
		st.Cookies = append(st.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("chmod session file: %w", err)
	}
	return nil
}

func (f *SessionFile) Path() string {
	return f.path
}
