// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Port            int
	DatabasePath    string
	LogLevel        string
	FetchInterval   time.Duration
	RetentionWindow time.Duration
	APIKey          string
	AllowedOrigins  []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port, err := intEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/feedhub.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	intervalMin, err := intEnv("FETCH_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	if intervalMin <= 0 {
		return nil, fmt.Errorf("FETCH_INTERVAL_MINUTES must be positive, got %d", intervalMin)
	}

	retentionHours, err := intEnv("RETENTION_HOURS", 24)
	if err != nil {
		return nil, err
	}
	if retentionHours <= 0 {
		return nil, fmt.Errorf("RETENTION_HOURS must be positive, got %d", retentionHours)
	}

	origins := []string{"*"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		var parsed []string
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			parsed = append(parsed, s)
		}
		if len(parsed) > 0 {
			origins = parsed
		}
	}

	return &Config{
		Port:            port,
		DatabasePath:    dbPath,
		LogLevel:        logLevel,
		FetchInterval:   time.Duration(intervalMin) * time.Minute,
		RetentionWindow: time.Duration(retentionHours) * time.Hour,
		APIKey:          os.Getenv("API_KEY"),
		AllowedOrigins:  origins,
	}, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
