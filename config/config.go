package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	PORT   string
	DB_URL string

	CHAIN_RPC_URL string

	OIDC_ISSUER     string
	OIDC_AUDIENCE   string
	AUTH_DEV_SECRET string

	REDIS_ADDR string

	SESSION_WINDOW time.Duration
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	DB_URL = mustEnv("DB_URL")
	CHAIN_RPC_URL = mustEnv("CHAIN_RPC_URL")

	// Either a real identity provider or a dev signing secret must be
	// configured; the auth middleware rejects bearer tokens when both are empty.
	OIDC_ISSUER = getEnv("OIDC_ISSUER", "")
	OIDC_AUDIENCE = getEnv("OIDC_AUDIENCE", "")
	AUTH_DEV_SECRET = getEnv("AUTH_DEV_SECRET", "")
	if OIDC_ISSUER == "" && AUTH_DEV_SECRET == "" {
		log.Fatal("Set OIDC_ISSUER (+ OIDC_AUDIENCE) or AUTH_DEV_SECRET")
	}

	REDIS_ADDR = getEnv("REDIS_ADDR", "")

	windowMin, err := strconv.Atoi(getEnv("SESSION_WINDOW_MINUTES", "15"))
	if err != nil || windowMin <= 0 {
		log.Fatalf("Invalid SESSION_WINDOW_MINUTES: %v", err)
	}
	SESSION_WINDOW = time.Duration(windowMin) * time.Minute
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
