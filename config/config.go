// Package config loads server configuration from the environment
// (optionally seeded from a .env file) and builds the logger.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the server binary needs.
type Config struct {
	Port      int
	DBPath    string // empty = in-memory store
	Env       string // "development" or "production"
	JWTSecret string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:      8080,
		DBPath:    os.Getenv("DB_PATH"),
		Env:       os.Getenv("ENV"),
		JWTSecret: os.Getenv("JWT_SECRET"),
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-do-not-use"
	}
	return cfg, nil
}
