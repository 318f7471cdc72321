package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Session
	SessionSecret  string
	MaxFreePrompts int

	// Gemini AI (empty key runs the scripted analyst)
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Chat rate limiting
	ChatRateLimit  int
	ChatRateWindow int // seconds

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		SessionSecret:        mustGetEnv("SESSION_SECRET"),
		MaxFreePrompts:       getEnvAsIntOrDefault("MAX_FREE_PROMPTS", 5),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		ChatRateLimit:        getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 20),
		ChatRateWindow:       getEnvAsIntOrDefault("CHAT_RATE_WINDOW_SECONDS", 60),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// IsProduction gates cookie security attributes.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
