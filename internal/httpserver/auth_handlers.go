package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"thumblify/thumbnail-api/internal/audit"
	"thumblify/thumbnail-api/internal/auth"
	"thumblify/thumbnail-api/internal/observability"
)

const (
	loginMethodPassword = "password"
	loginMethodGoogle   = "google"
)

func registerAuthHandlers(r *mux.Router, deps Deps) {
	r.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, token, err := deps.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrEmailTaken):
				auditReq(deps.Audit, deps.Logger, r, audit.Event{Action: audit.ActionRegister, Target: req.Email, Outcome: audit.OutcomeFailed, Detail: "email taken"})
				writeError(w, http.StatusBadRequest, "User already exists")
			case errors.Is(err, auth.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, inputMessage(err))
			default:
				observability.LogError(deps.Logger, "register failed", err, "request_id", requestIDFromContext(r.Context()))
				writeError(w, http.StatusInternalServerError, "Registration failed")
			}
			return
		}

		setSessionCookie(w, deps, token)
		sessionCreated(deps, loginMethodPassword)
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: user.ID, Action: audit.ActionRegister, Outcome: audit.OutcomeSuccess})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Account created successfully",
			"user":    user,
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, token, err := deps.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				auditReq(deps.Audit, deps.Logger, r, audit.Event{Action: audit.ActionLogin, Target: req.Email, Outcome: audit.OutcomeFailed, Detail: "invalid credentials"})
				writeError(w, http.StatusBadRequest, "Invalid email or password")
				return
			}
			observability.LogError(deps.Logger, "login failed", err, "request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		setSessionCookie(w, deps, token)
		sessionCreated(deps, loginMethodPassword)
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: user.ID, Action: audit.ActionLogin, Outcome: audit.OutcomeSuccess})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user":    user,
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r, deps)
		if token != "" {
			if err := deps.Auth.Logout(r.Context(), token); err != nil {
				observability.LogError(deps.Logger, "logout failed", err, "request_id", requestIDFromContext(r.Context()))
				writeError(w, http.StatusInternalServerError, "Logout failed")
				return
			}
		}
		clearSessionCookie(w, deps)
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Action: audit.ActionLogout, Outcome: audit.OutcomeSuccess})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}).Methods(http.MethodGet)

	r.HandleFunc("/google", func(w http.ResponseWriter, r *http.Request) {
		if deps.Google == nil {
			writeError(w, http.StatusServiceUnavailable, "Google login is not configured")
			return
		}
		if err := deps.Google.Begin(w, r); err != nil {
			observability.LogError(deps.Logger, "google login start failed", err, "request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "Google login failed")
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if deps.Google == nil {
			writeError(w, http.StatusServiceUnavailable, "Google login is not configured")
			return
		}
		failed := func(err error) {
			deps.Logger.Warn("google login rejected", "request_id", requestIDFromContext(r.Context()), "error", err)
			auditReq(deps.Audit, deps.Logger, r, audit.Event{Action: audit.ActionGoogleLogin, Outcome: audit.OutcomeFailed, Detail: err.Error()})
			http.Redirect(w, r, strings.TrimRight(deps.ClientURL, "/")+"/login?error=google", http.StatusFound)
		}

		identity, err := deps.Google.Complete(w, r)
		if err != nil {
			failed(err)
			return
		}
		user, token, err := deps.Auth.LoginWithFederatedIdentity(r.Context(), identity)
		if err != nil {
			if !errors.Is(err, auth.ErrIdentityRejected) {
				observability.LogError(deps.Logger, "google login failed", err, "request_id", requestIDFromContext(r.Context()))
			}
			failed(err)
			return
		}

		setSessionCookie(w, deps, token)
		sessionCreated(deps, loginMethodGoogle)
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: user.ID, Action: audit.ActionGoogleLogin, Outcome: audit.OutcomeSuccess, Detail: deps.Google.Provider()})
		http.Redirect(w, r, deps.ClientURL, http.StatusFound)
	}).Methods(http.MethodGet)
}

// requireUser resolves the session cookie, answering 401 itself when there is
// no live session.
func requireUser(w http.ResponseWriter, r *http.Request, deps Deps) (auth.PublicUser, bool) {
	token := sessionToken(r, deps)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return auth.PublicUser{}, false
	}
	user, err := deps.Auth.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return auth.PublicUser{}, false
		}
		observability.LogError(deps.Logger, "session verify failed", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return auth.PublicUser{}, false
	}
	return user, true
}

func sessionToken(r *http.Request, deps Deps) string {
	c, err := r.Cookie(deps.Cookie.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func setSessionCookie(w http.ResponseWriter, deps Deps, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     deps.Cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(deps.Auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   deps.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, deps Deps) {
	http.SetCookie(w, &http.Cookie{
		Name:     deps.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   deps.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionCreated(deps Deps, method string) {
	if deps.Metrics != nil {
		deps.Metrics.SessionCreated(method)
	}
}

// inputMessage strips the sentinel prefix from a validation error so only the
// field detail reaches the client.
func inputMessage(err error) string {
	msg := err.Error()
	if _, detail, ok := strings.Cut(msg, ": "); ok && detail != "" {
		return detail
	}
	return msg
}
