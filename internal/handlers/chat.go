package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/services"
	"lovebomb-backend/internal/stream"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Stream handles POST /api/v1/chat. The response is NDJSON: text deltas as
// they arrive, structured events when complete, then a done event carrying
// the authoritative session counters. Errors before the first byte get a
// proper status code; after that the connection just closes.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No session", r))
		return
	}

	req := &models.ChatRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}

	sw := stream.NewWriter(w)
	started := false
	_, err := h.chat.Run(r.Context(), sess, req, func(ev models.StreamEvent) error {
		if !started {
			sw.Prepare(w)
			started = true
		}
		return sw.Send(ev)
	})
	if err == nil || started {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("chat stream aborted for session %s: %v", sess.ID, err)
		}
		return
	}

	var gateErr *services.GateError
	switch {
	case errors.As(err, &gateErr):
		writeJSON(w, http.StatusForbidden, models.GateRequiredResponse{
			Error:       "gate_required",
			PromptCount: gateErr.PromptCount,
		})
	case errors.Is(err, services.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", err.Error(), r))
	case errors.Is(err, context.Canceled):
		// Client went away before the first event.
	default:
		log.Printf("chat turn failed for session %s: %v", sess.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("ANALYSIS_FAILED", "Failed to generate analysis", r))
	}
}
