package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"lovebomb-backend/internal/analytics"
	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/session"
)

type SessionHandler struct {
	store   *session.Store
	tracker analytics.Tracker
}

func NewSessionHandler(store *session.Store, tracker analytics.Tracker) *SessionHandler {
	if tracker == nil {
		tracker = analytics.Default()
	}
	return &SessionHandler{store: store, tracker: tracker}
}

// Info handles GET /api/v1/session.
func (h *SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No session", r))
		return
	}

	writeJSON(w, http.StatusOK, models.SessionInfo{
		PromptCount: sess.PromptCount,
		MaxPrompts:  h.store.MaxPrompts(),
		IsUnlocked:  sess.IsUnlocked,
		Remaining:   h.store.Remaining(sess),
	})
}

// Unlock handles POST /api/v1/session/unlock. The handle is whatever the
// visitor typed during the engagement step; it is recorded, not verified.
func (h *SessionHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No session", r))
		return
	}

	var req models.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}

	updated, err := h.store.Unlock(r.Context(), sess.ID, strings.TrimSpace(req.Handle))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("UNLOCK_FAILED", "Failed to unlock session", r))
		return
	}
	h.tracker.Track(analytics.EventGateUnlocked, map[string]any{"sessionId": sess.ID})

	writeJSON(w, http.StatusOK, models.SessionInfo{
		PromptCount: updated.PromptCount,
		MaxPrompts:  h.store.MaxPrompts(),
		IsUnlocked:  updated.IsUnlocked,
		Remaining:   h.store.Remaining(updated),
	})
}
