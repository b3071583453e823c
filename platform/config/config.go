// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides settings for the rate-limit/dedup cache.
type RedisConfig interface {
	GetRedisURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// SlackConfig provides settings for the Slack integration.
type SlackConfig interface {
	GetSlackSigningSecret() string
	GetSlackClientID() string
	GetSlackClientSecret() string
	GetSlackAPIBaseURL() string
}

// ScoringConfig provides settings for the lead scoring service.
type ScoringConfig interface {
	GetGeminiAPIKey() string
	GetScoringModel() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	JWTAccessSecret     string
	CORSOrigins         []string
	SlackSigningSecret  string
	SlackClientID       string
	SlackClientSecret   string
	SlackAPIBaseURL     string
	GeminiAPIKey        string
	ScoringModel        string
	TokenRefreshTimeout time.Duration
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// SlackConfig implementation
func (c *Config) GetSlackSigningSecret() string { return c.SlackSigningSecret }
func (c *Config) GetSlackClientID() string      { return c.SlackClientID }
func (c *Config) GetSlackClientSecret() string  { return c.SlackClientSecret }
func (c *Config) GetSlackAPIBaseURL() string    { return c.SlackAPIBaseURL }

// ScoringConfig implementation
func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetScoringModel() string { return c.ScoringModel }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		SlackSigningSecret:  getEnv("SLACK_SIGNING_SECRET", ""),
		SlackClientID:       getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret:   getEnv("SLACK_CLIENT_SECRET", ""),
		SlackAPIBaseURL:     getEnv("SLACK_API_BASE_URL", "https://slack.com/api"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		ScoringModel:        getEnv("SCORING_MODEL", "gemini-2.5-flash"),
		TokenRefreshTimeout: mustDuration(getEnv("SLACK_TOKEN_REFRESH_TIMEOUT", "10s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.SlackSigningSecret == "" {
		return nil, fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
