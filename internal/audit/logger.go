package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ActionRegister    = "auth.register"
	ActionLogin       = "auth.login"
	ActionLogout      = "auth.logout"
	ActionGoogleLogin = "auth.google"
	ActionGenerate    = "thumbnail.generate"
	ActionDelete      = "thumbnail.delete"
	ActionComplete    = "thumbnail.complete"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
)

const actorAnonymous = "anonymous"

// Event is one JSON line in the audit file. Actor is a user id, or
// "anonymous" before authentication succeeds.
type Event struct {
	At        string `json:"at"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Outcome   string `json:"outcome"`
	RequestID string `json:"request_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type Logger struct {
	path    string
	nowFunc func() time.Time
	mu      sync.Mutex
}

// NewLogger appends to path. An empty path disables auditing.
func NewLogger(path string) *Logger {
	return &Logger{path: path, nowFunc: time.Now}
}

func (l *Logger) Record(e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.At == "" {
		e.At = l.nowFunc().UTC().Format(time.RFC3339)
	}
	if e.Actor == "" {
		e.Actor = actorAnonymous
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}
