package httpserver

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"thumblify/thumbnail-api/internal/audit"
	"thumblify/thumbnail-api/internal/observability"
	"thumblify/thumbnail-api/internal/thumbnail"
)

const callbackSecretHeader = "X-Callback-Secret"

func registerThumbnailHandlers(r *mux.Router, deps Deps) {
	r.HandleFunc("/thumbnail/generate", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		var req struct {
			Title       string `json:"title"`
			Prompt      string `json:"prompt"`
			Style       string `json:"style"`
			AspectRatio string `json:"aspect_ratio"`
			ColorScheme string `json:"color_scheme"`
			TextOverlay bool   `json:"text_overlay"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		t, err := deps.Thumbnails.RequestGeneration(r.Context(), user.ID, thumbnail.Params{
			Title:       req.Title,
			Prompt:      req.Prompt,
			Style:       req.Style,
			AspectRatio: req.AspectRatio,
			ColorScheme: req.ColorScheme,
			TextOverlay: req.TextOverlay,
		})
		if err != nil {
			writeThumbnailError(w, r, deps, "generate thumbnail failed", err)
			return
		}

		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: user.ID, Action: audit.ActionGenerate, Target: t.ID, Outcome: audit.OutcomeSuccess, Detail: string(t.Status)})
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Thumbnail generation started",
			"thumbnail": t,
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/thumbnail/{id}", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		id := mux.Vars(r)["id"]
		if err := deps.Thumbnails.Delete(r.Context(), user.ID, id); err != nil {
			writeThumbnailError(w, r, deps, "delete thumbnail failed", err)
			return
		}
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: user.ID, Action: audit.ActionDelete, Target: id, Outcome: audit.OutcomeSuccess})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Thumbnail deleted"})
	}).Methods(http.MethodDelete)

	r.HandleFunc("/user/thumbnail/{id}", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		t, err := deps.Thumbnails.Get(r.Context(), user.ID, mux.Vars(r)["id"])
		if err != nil {
			writeThumbnailError(w, r, deps, "get thumbnail failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"thumbnail": t})
	}).Methods(http.MethodGet)

	r.HandleFunc("/user/thumbnails", func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		items, err := deps.Thumbnails.List(r.Context(), user.ID)
		if err != nil {
			writeThumbnailError(w, r, deps, "list thumbnails failed", err)
			return
		}
		if items == nil {
			items = []thumbnail.Thumbnail{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"thumbnails": items})
	}).Methods(http.MethodGet)
}

// registerCallbackHandlers mounts the completion hook for out-of-process
// generators. Without a configured secret the route does not exist.
func registerCallbackHandlers(r *mux.Router, deps Deps) {
	if deps.CallbackSecret == "" {
		return
	}
	secret := []byte(deps.CallbackSecret)

	r.HandleFunc("/internal/thumbnails/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(callbackSecretHeader))
		if subtle.ConstantTimeCompare(got, secret) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid callback secret")
			return
		}
		var req struct {
			Status   string `json:"status"`
			ImageURL string `json:"image_url"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		id := mux.Vars(r)["id"]
		applied, err := deps.Thumbnails.Complete(r.Context(), id, thumbnail.Outcome{
			Status:   thumbnail.Status(req.Status),
			ImageURL: req.ImageURL,
		})
		if err != nil {
			writeThumbnailError(w, r, deps, "complete thumbnail failed", err)
			return
		}

		outcome := audit.OutcomeSuccess
		if !applied {
			outcome = audit.OutcomeIgnored
		}
		auditReq(deps.Audit, deps.Logger, r, audit.Event{Actor: "generator", Action: audit.ActionComplete, Target: id, Outcome: outcome, Detail: req.Status})
		writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
	}).Methods(http.MethodPost)
}

func writeThumbnailError(w http.ResponseWriter, r *http.Request, deps Deps, msg string, err error) {
	switch {
	case errors.Is(err, thumbnail.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err))
	case errors.Is(err, thumbnail.ErrNotFound):
		writeError(w, http.StatusNotFound, "Thumbnail not found")
	default:
		observability.LogError(deps.Logger, msg, err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
