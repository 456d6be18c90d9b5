package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/packrat-app/packrat/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port           string
	DBPath         string
	DataDir        string
	StorageBackend string // badger | sqlite
	SearchMode     string // fts | memory
	TileURL        string
	ArticleURL     string
	StorageBudget  int64
	LogLevel       string
	LogFormat      string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", constants.DefaultPort),
		DBPath:         getEnv("DB_PATH", constants.DefaultDBPath),
		DataDir:        getEnv("DATA_DIR", constants.DefaultDataDir),
		StorageBackend: getEnv("STORAGE_BACKEND", constants.BackendSQLite),
		SearchMode:     getEnv("SEARCH_MODE", constants.SearchModeFTS),
		TileURL:        getEnv("TILE_URL", constants.DefaultTileURL),
		ArticleURL:     getEnv("ARTICLE_URL", constants.DefaultArticleURL),
		StorageBudget:  getEnvInt64("STORAGE_BUDGET_BYTES", constants.DefaultStorageBudget),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.DataDir == "" {
		errors = append(errors, "DATA_DIR cannot be empty")
	}

	validBackends := map[string]bool{
		constants.BackendBadger: true,
		constants.BackendSQLite: true,
	}
	if !validBackends[c.StorageBackend] {
		errors = append(errors, fmt.Sprintf("STORAGE_BACKEND must be one of: badger, sqlite, got: %s", c.StorageBackend))
	}

	validModes := map[string]bool{
		constants.SearchModeFTS:    true,
		constants.SearchModeMemory: true,
	}
	if !validModes[c.SearchMode] {
		errors = append(errors, fmt.Sprintf("SEARCH_MODE must be one of: fts, memory, got: %s", c.SearchMode))
	}

	if c.TileURL == "" {
		errors = append(errors, "TILE_URL cannot be empty")
	} else {
		if _, err := url.Parse(c.TileURL); err != nil {
			errors = append(errors, fmt.Sprintf("TILE_URL is not a valid URL: %s", c.TileURL))
		} else if !strings.Contains(c.TileURL, "{z}") {
			errors = append(errors, "TILE_URL must contain {z}/{x}/{y} placeholders")
		}
	}

	if c.ArticleURL == "" {
		errors = append(errors, "ARTICLE_URL cannot be empty")
	}

	if c.StorageBudget <= 0 {
		errors = append(errors, fmt.Sprintf("STORAGE_BUDGET_BYTES must be positive, got: %d", c.StorageBudget))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
