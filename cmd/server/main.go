package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lovebomb-backend/internal/analytics"
	"lovebomb-backend/internal/config"
	"lovebomb-backend/internal/database"
	"lovebomb-backend/internal/handlers"
	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/repository"
	"lovebomb-backend/internal/router"
	"lovebomb-backend/internal/services"
	"lovebomb-backend/internal/session"
	"lovebomb-backend/internal/websocket"
	"lovebomb-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Lovebomb Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	convRepo := repository.NewConversationRepo(pool)
	shareRepo := repository.NewShareRepo(pool)

	// ──── Step 5: Select Analyst ────
	var analyst services.Analyst
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiAnalyst(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		analyst = gemini
		log.Println("✓ Gemini Flash analyst initialized")
	} else {
		analyst = services.NewScriptedAnalyst()
		log.Println("✓ Scripted analyst initialized (no GEMINI_API_KEY)")
	}

	// ──── Initialize Session Layer ────
	sessionStore := session.NewStore(redisClient, cfg.MaxFreePrompts)
	cookieCodec := session.NewCookieCodec(cfg.SessionSecret)
	sessionAuth := middleware.NewSessionAuth(sessionStore, cookieCodec, cfg.IsProduction())

	if !cfg.IsProduction() {
		analytics.Init(analytics.LogTracker{})
	}

	// ──── Initialize Services ────
	chatService := services.NewChatService(analyst, sessionStore, convRepo, analytics.Default())

	// ──── Step 6: Start Card Render Workers ────
	workerPool := worker.NewPool(redisClient, shareRepo, 2)
	workerPool.Start()

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(chatService)
	sessionHandler := handlers.NewSessionHandler(sessionStore, analytics.Default())
	shareHandler := handlers.NewShareHandler(shareRepo, redisClient, workerPool, analytics.Default())
	transcriptHandler := handlers.NewTranscriptHandler(convRepo)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(chatService)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	chatLimiter := middleware.NewRateLimiter(redisClient, cfg.ChatRateLimit, time.Duration(cfg.ChatRateWindow)*time.Second)

	r := router.New(
		sessionAuth,
		chatLimiter,
		chatHandler,
		sessionHandler,
		shareHandler,
		transcriptHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: chat responses stream for as long as the
		// analyst takes.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Lovebomb Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/chat/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
