package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"lovebomb-backend/internal/analytics"
	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/ogimage"
	"lovebomb-backend/internal/repository"
	"lovebomb-backend/internal/share"
	"lovebomb-backend/internal/worker"
)

type ShareHandler struct {
	shareRepo *repository.ShareRepo
	redis     *redis.Client
	pool      *worker.Pool
	tracker   analytics.Tracker
}

func NewShareHandler(shareRepo *repository.ShareRepo, redisClient *redis.Client, pool *worker.Pool, tracker analytics.Tracker) *ShareHandler {
	if tracker == nil {
		tracker = analytics.Default()
	}
	return &ShareHandler{shareRepo: shareRepo, redis: redisClient, pool: pool, tracker: tracker}
}

type createShareResponse struct {
	ID      string `json:"id"`
	Encoded string `json:"encoded"`
}

// Create handles POST /api/v1/share: persists the card and returns the short
// id plus the base64 parameter for the share link.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No session", r))
		return
	}

	var payload models.SharePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Card name is required", r))
		return
	}

	card, err := h.shareRepo.Create(r.Context(), payload)
	if err != nil {
		log.Printf("failed to create share for session %s: %v", sess.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("SHARE_FAILED", "Failed to create share", r))
		return
	}

	if h.pool != nil {
		h.pool.EnqueueRender(r.Context(), card.ID)
	}
	h.tracker.Track(analytics.EventShareCreated, map[string]any{
		"sessionId": sess.ID,
		"shareId":   card.ID,
	})

	encoded, err := share.Encode(card.Payload)
	if err != nil {
		log.Printf("failed to encode share link for card %s: %v", card.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("SHARE_FAILED", "Failed to encode share link", r))
		return
	}

	writeJSON(w, http.StatusCreated, createShareResponse{
		ID:      card.ID,
		Encoded: encoded,
	})
}

// Get handles GET /api/v1/share/{id}.
func (h *ShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	card, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// CardImage handles GET /api/v1/share/{id}/card.png. The worker usually has
// the PNG cached in redis already; on a miss it renders inline and
// backfills the cache.
func (h *ShareHandler) CardImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.redis != nil {
		if data, err := h.redis.Get(r.Context(), worker.CardKey(id)).Bytes(); err == nil {
			servePNG(w, data)
			return
		}
	}

	card, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := ogimage.Render(&buf, card.Payload); err != nil {
		log.Printf("failed to render card %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("RENDER_FAILED", "Failed to render card", r))
		return
	}

	if h.redis != nil {
		if err := h.redis.Set(r.Context(), worker.CardKey(id), buf.Bytes(), 7*24*time.Hour).Err(); err != nil {
			log.Printf("failed to cache card %s: %v", id, err)
		}
	}
	servePNG(w, buf.Bytes())
}

func (h *ShareHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.ShareCard, bool) {
	id := chi.URLParam(r, "id")
	card, err := h.shareRepo.GetByID(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Share not found", r))
		return nil, false
	}
	if err != nil {
		log.Printf("failed to load share %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("SHARE_FAILED", "Failed to load share", r))
		return nil, false
	}
	return card, true
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
