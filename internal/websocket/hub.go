// Package websocket carries the chat stream over a websocket connection for
// clients that cannot consume chunked NDJSON responses. Frames use the same
// event JSON as the HTTP transport.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is what the browser sends: a chat request to start a turn, or
// a cancel for the one in flight.
type clientFrame struct {
	Type string `json:"type"` // "chat" | "cancel"
	models.ChatRequest
}

// errorFrame mirrors the HTTP error responses on the socket.
type errorFrame struct {
	Type        string `json:"type"`
	Error       string `json:"error"`
	PromptCount int    `json:"promptCount,omitempty"`
}

type Hub struct {
	chat *services.ChatService
}

func NewHub(chat *services.ChatService) *Hub {
	return &Hub{chat: chat}
}

// HandleWebSocket upgrades the connection and serves chat turns until the
// client goes away. One turn runs at a time per connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("WebSocket connected: session %s", sess.ID)
	defer log.Printf("WebSocket disconnected: session %s", sess.ID)

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	var turnMu sync.Mutex
	var cancelTurn context.CancelFunc

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			turnMu.Lock()
			if cancelTurn != nil {
				cancelTurn()
			}
			turnMu.Unlock()
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			send(errorFrame{Type: "error", Error: "malformed frame"})
			continue
		}

		if frame.Type == "cancel" {
			turnMu.Lock()
			if cancelTurn != nil {
				cancelTurn()
				cancelTurn = nil
			}
			turnMu.Unlock()
			continue
		}

		turnMu.Lock()
		if cancelTurn != nil {
			turnMu.Unlock()
			send(errorFrame{Type: "error", Error: "turn already in progress"})
			continue
		}
		ctx, cancel := context.WithCancel(r.Context())
		cancelTurn = cancel
		turnMu.Unlock()

		go func(req models.ChatRequest) {
			defer func() {
				turnMu.Lock()
				cancelTurn = nil
				turnMu.Unlock()
				cancel()
			}()
			h.runTurn(ctx, sess, &req, send)
		}(frame.ChatRequest)
	}
}

func (h *Hub) runTurn(ctx context.Context, sess *models.Session, req *models.ChatRequest, send func(any) error) {
	_, err := h.chat.Run(ctx, sess, req, func(ev models.StreamEvent) error {
		return send(ev)
	})
	if err == nil {
		return
	}

	var gateErr *services.GateError
	switch {
	case errors.As(err, &gateErr):
		send(errorFrame{Type: "error", Error: "gate_required", PromptCount: gateErr.PromptCount})
	case errors.Is(err, services.ErrInvalidRequest):
		send(errorFrame{Type: "error", Error: err.Error()})
	case errors.Is(err, context.Canceled):
		// Client asked for it; nothing to report.
	default:
		log.Printf("websocket turn failed for session %s: %v", sess.ID, err)
		send(errorFrame{Type: "error", Error: "analysis failed"})
	}
}
