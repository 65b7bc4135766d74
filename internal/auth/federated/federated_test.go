package federated

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumblify/thumbnail-api/internal/auth"
)

type fakeExchanger struct {
	identity auth.Identity
	err      error
	codes    []string
}

func (f *fakeExchanger) Name() string { return "google" }

func (f *fakeExchanger) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (auth.Identity, error) {
	f.codes = append(f.codes, code)
	return f.identity, f.err
}

func newTestFlow(t *testing.T, ex Exchanger) *Flow {
	t.Helper()
	f, err := NewFlow(ex, FlowConfig{StateSecret: "0123456789abcdef0123", CallbackPath: "/api/auth/google/callback"})
	require.NoError(t, err)
	return f
}

// begin runs Begin and returns the state sent to the provider plus the
// cookie the browser would store.
func begin(t *testing.T, f *Flow) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, f.Begin(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil)))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	return state, cookies[0]
}

func callback(f *Flow, query string, c *http.Cookie) (auth.Identity, error) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+query, nil)
	if c != nil {
		req.AddCookie(c)
	}
	return f.Complete(httptest.NewRecorder(), req)
}

func TestFlowRoundTrip(t *testing.T) {
	ex := &fakeExchanger{identity: auth.Identity{Email: "ada@example.com", EmailVerified: true, Name: "Ada"}}
	f := newTestFlow(t, ex)

	state, cookie := begin(t, f)
	id, err := callback(f, "state="+url.QueryEscape(state)+"&code=abc", cookie)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, []string{"abc"}, ex.codes)
}

func TestFlowRejectsStateMismatch(t *testing.T) {
	ex := &fakeExchanger{}
	f := newTestFlow(t, ex)
	_, cookie := begin(t, f)

	_, err := callback(f, "state=forged&code=abc", cookie)
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Empty(t, ex.codes, "code must not be exchanged on state mismatch")
}

func TestFlowRejectsMissingCookie(t *testing.T) {
	f := newTestFlow(t, &fakeExchanger{})
	state, _ := begin(t, f)

	_, err := callback(f, "state="+url.QueryEscape(state)+"&code=abc", nil)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestFlowRejectsExpiredState(t *testing.T) {
	f := newTestFlow(t, &fakeExchanger{})
	start := time.Now()
	f.nowFunc = func() time.Time { return start }
	state, cookie := begin(t, f)

	f.nowFunc = func() time.Time { return start.Add(stateTTL + time.Minute) }
	_, err := callback(f, "state="+url.QueryEscape(state)+"&code=abc", cookie)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestFlowRejectsCookieSignedWithOtherSecret(t *testing.T) {
	other, err := NewFlow(&fakeExchanger{}, FlowConfig{StateSecret: "another-secret-value-xx"})
	require.NoError(t, err)
	state, cookie := begin(t, other)

	f := newTestFlow(t, &fakeExchanger{})
	_, err = callback(f, "state="+url.QueryEscape(state)+"&code=abc", cookie)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestFlowProviderErrorAndMissingCode(t *testing.T) {
	f := newTestFlow(t, &fakeExchanger{})
	state, cookie := begin(t, f)

	_, err := callback(f, "error=access_denied", cookie)
	assert.ErrorIs(t, err, ErrProviderError)

	_, err = callback(f, "state="+url.QueryEscape(state), cookie)
	assert.ErrorIs(t, err, ErrMissingCode)
}

func TestFlowExchangeFailure(t *testing.T) {
	boom := errors.New("boom")
	f := newTestFlow(t, &fakeExchanger{err: boom})
	state, cookie := begin(t, f)

	_, err := callback(f, "state="+url.QueryEscape(state)+"&code=abc", cookie)
	assert.ErrorIs(t, err, boom)
}

func TestNewFlowValidation(t *testing.T) {
	_, err := NewFlow(nil, FlowConfig{StateSecret: "0123456789abcdef"})
	assert.Error(t, err)
	_, err = NewFlow(&fakeExchanger{}, FlowConfig{StateSecret: "short"})
	assert.Error(t, err)
}
