// Package config loads server configuration from the environment, with
// optional .env files applied first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPort       = 3001
	DefaultCORSOrigin = "http://localhost:5173"
	DefaultMaxTokens  = 4096
	DefaultModel      = "anthropic/claude-sonnet-4"
	DefaultBaseURL    = "https://openrouter.ai/api/v1"
	DefaultDriver     = "sqlite3"
)

type Config struct {
	Port        int
	CORSOrigin  string
	ProjectRoot string
	MaxTokens   int

	OpenRouterAPIKey     string
	OpenRouterModel      string
	OpenRouterModelFast  string
	OpenRouterModelHeavy string
	OpenRouterBaseURL    string

	DatabaseDriver string
	DatabasePath   string

	CommandsDir string

	LogLevel  string
	LogFormat string
}

// Load builds a Config from the current environment. Call LoadEnvFiles
// first if .env files should participate.
func Load() (*Config, error) {
	projectRoot := os.Getenv("PROJECT_ROOT")
	if projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		projectRoot = filepath.Dir(cwd)
	}

	port, err := getEnvInt("PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	maxTokens, err := getEnvInt("MAX_TOKENS", DefaultMaxTokens)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 port,
		CORSOrigin:           getEnv("CORS_ORIGIN", DefaultCORSOrigin),
		ProjectRoot:          projectRoot,
		MaxTokens:            maxTokens,
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:      getEnv("OPENROUTER_MODEL", DefaultModel),
		OpenRouterModelFast:  os.Getenv("OPENROUTER_MODEL_FAST"),
		OpenRouterModelHeavy: os.Getenv("OPENROUTER_MODEL_HEAVY"),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", DefaultBaseURL),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", DefaultDriver),
		DatabasePath:         getEnv("DATABASE_PATH", filepath.Join(".tandem", "tandem.db")),
		CommandsDir:          getEnv("COMMANDS_DIR", filepath.Join(projectRoot, ".tandem", "commands")),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "simple"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	switch c.DatabaseDriver {
	case "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	return nil
}

// ResolveModel maps a requested model to a concrete model id. Empty means
// the configured default; "fast" and "heavy" select the tier overrides when
// set; anything else is taken literally.
func (c *Config) ResolveModel(requested string) string {
	switch requested {
	case "":
		return c.OpenRouterModel
	case "fast":
		if c.OpenRouterModelFast != "" {
			return c.OpenRouterModelFast
		}
		return c.OpenRouterModel
	case "heavy":
		if c.OpenRouterModelHeavy != "" {
			return c.OpenRouterModelHeavy
		}
		return c.OpenRouterModel
	default:
		return requested
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
