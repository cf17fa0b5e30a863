package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the composition root needs to wire the service.
type Config struct {
	DatabaseURL      string
	JWTSecret        string
	LogLevel         string
	MaxDBConns       int32
	WorkerCount      int
	WorkerPoll       time.Duration
	DispatchPoll     time.Duration
	CacheDuration    time.Duration
	ShutdownDeadline time.Duration
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", "dev-secret"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		MaxDBConns:       int32(getEnvInt("MAX_DB_CONNS", 0)),
		WorkerCount:      getEnvInt("WORKER_COUNT", 4),
		WorkerPoll:       getEnvSeconds("WORKER_POLL_SECONDS", 5*time.Second),
		DispatchPoll:     getEnvSeconds("DISPATCH_POLL_SECONDS", 5*time.Second),
		CacheDuration:    getEnvMinutes("CACHE_DURATION_MINUTES", 5*time.Minute),
		ShutdownDeadline: getEnvSeconds("SHUTDOWN_DEADLINE_SECONDS", 15*time.Second),
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if n := getEnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultValue time.Duration) time.Duration {
	if n := getEnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Minute
	}
	return defaultValue
}
