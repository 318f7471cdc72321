package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"lovebomb-backend/internal/handlers"
	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/websocket"
)

func New(
	sessionAuth *middleware.SessionAuth,
	chatLimiter *middleware.RateLimiter,
	chatHandler *handlers.ChatHandler,
	sessionHandler *handlers.SessionHandler,
	shareHandler *handlers.ShareHandler,
	transcriptHandler *handlers.TranscriptHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Share cards (public: crawlers fetch these without cookies) ────
		r.Route("/share", func(r chi.Router) {
			r.Get("/{id}", shareHandler.Get)
			r.Get("/{id}/card.png", shareHandler.CardImage)

			r.Group(func(r chi.Router) {
				r.Use(sessionAuth.Middleware)
				r.Post("/", shareHandler.Create)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.Middleware)

			// ──── Chat ────
			r.Group(func(r chi.Router) {
				r.Use(chatLimiter.Middleware)
				r.Post("/chat", chatHandler.Stream)
				r.Get("/chat/ws", wsHub.HandleWebSocket)
			})

			// ──── Session ────
			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionHandler.Info)
				r.Post("/unlock", sessionHandler.Unlock)
			})

			// ──── Transcript export ────
			r.Get("/conversations/{id}/transcript.md", transcriptHandler.Export)
		})
	})

	return r
}
