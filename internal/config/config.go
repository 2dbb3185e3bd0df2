// Package config reads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dvloznov/aeva/internal/currency"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultModel is the Gemini model used when GEMINI_MODEL is unset.
const DefaultModel = "gemini-2.5-flash"

type Config struct {
	// HTTP Server
	Port string
	// APIToken, when set, is required as a bearer token on API requests.
	APIToken string

	// AI gateway
	GeminiAPIKey string
	GeminiModel  string

	// State
	StateBackend string
	StatePath    string

	// Receipt sources
	GCSCredentialsFile string

	// Logging
	LogLevel  string
	LogPretty bool

	DefaultCurrency string
}

// Load reads .env when present and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		APIToken: getEnv("API_TOKEN", ""),

		GeminiAPIKey: apiKey,
		GeminiModel:  getEnv("GEMINI_MODEL", DefaultModel),

		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", BackendFile)),
		StatePath:    getEnv("STATE_PATH", "./data"),

		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", currency.Default)),
	}
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendFile, BackendSQLite, BackendMemory}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.StateBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid state backend '%s': must be one of %v", c.StateBackend, validBackends))
	}

	if c.StateBackend != BackendMemory && strings.TrimSpace(c.StatePath) == "" {
		errors = append(errors, fmt.Sprintf("state path cannot be empty when using %s backend", c.StateBackend))
	}

	if !currency.IsSupported(c.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("unsupported default currency '%s': must be one of %v", c.DefaultCurrency, currency.Codes()))
	}

	if c.GCSCredentialsFile != "" {
		if _, err := os.Stat(c.GCSCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("GCS credentials file does not exist: %s", c.GCSCredentialsFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// HasAI reports whether an API key is configured.
func (c *Config) HasAI() bool {
	return c.GeminiAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
