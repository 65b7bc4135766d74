package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("json", "warn", &buf)

	log.Info("hidden")
	log.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
	assert.Equal(t, "thumbnail-api", rec["service"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("text", "debug", &buf).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLogErrorExpandsOops(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("json", "info", &buf)

	err := oops.Code("AUTH_LOGIN_FAILED").With("user_id", "u1").Wrap(errors.New("db down"))
	LogError(log, "login failed", err, "request_id", "r1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "AUTH_LOGIN_FAILED", rec["code"])
	assert.Equal(t, "r1", rec["request_id"])
	ctx, ok := rec["context"].(map[string]any)
	require.True(t, ok, "context attr missing: %v", rec)
	assert.Equal(t, "u1", ctx["user_id"])
}

func TestLogErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	LogError(NewLogger("json", "info", &buf), "boom", errors.New("plain"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "plain", rec["error"])
	assert.NotContains(t, rec, "code")
}

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("/api/auth/login", http.MethodPost, 200)
	m.ObserveRequest("/api/auth/login", http.MethodPost, 200)
	m.SessionCreated("password")
	m.ObserveGeneration("ready", 2*time.Second)
	m.ObserveGeneration("failed", 0)
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/auth/login", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues("password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "thumbnail_generations_total")
	assert.Contains(t, string(body), "go_goroutines")
}
