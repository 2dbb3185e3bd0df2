package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Port:            "8080",
		StateBackend:    BackendFile,
		StatePath:       "./data",
		DefaultCurrency: "USD",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "valid file backend config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "valid memory backend without path",
			mutate:  func(c *Config) { c.StateBackend = BackendMemory; c.StatePath = "" },
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid state backend",
			mutate:      func(c *Config) { c.StateBackend = "postgres" },
			wantErr:     true,
			errorString: "invalid state backend 'postgres': must be one of [file sqlite memory]",
		},
		{
			name:        "sqlite backend missing path",
			mutate:      func(c *Config) { c.StateBackend = BackendSQLite; c.StatePath = " " },
			wantErr:     true,
			errorString: "state path cannot be empty when using sqlite backend",
		},
		{
			name:        "unsupported default currency",
			mutate:      func(c *Config) { c.DefaultCurrency = "XYZ" },
			wantErr:     true,
			errorString: "unsupported default currency 'XYZ'",
		},
		{
			name:        "missing credentials file",
			mutate:      func(c *Config) { c.GCSCredentialsFile = filepath.Join(t.TempDir(), "nope.json") },
			wantErr:     true,
			errorString: "GCS credentials file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errorString)
					return
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := Config{Port: "x", StateBackend: "nope", StatePath: "./data", DefaultCurrency: "XYZ"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := strings.Count(err.Error(), "\n- "); got != 3 {
		t.Errorf("expected 3 problems, got %d: %v", got, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "STATE_BACKEND", "STATE_PATH", "LOG_LEVEL", "LOG_PRETTY", "GCS_CREDENTIALS_FILE", "DEFAULT_CURRENCY", "API_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GeminiModel != DefaultModel {
		t.Errorf("GeminiModel = %q, want %q", cfg.GeminiModel, DefaultModel)
	}
	if cfg.StateBackend != BackendFile || cfg.StatePath != "./data" {
		t.Errorf("state = %q %q", cfg.StateBackend, cfg.StatePath)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Errorf("DefaultCurrency = %q", cfg.DefaultCurrency)
	}
	if cfg.HasAI() {
		t.Error("HasAI() = true without a key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("STATE_BACKEND", "SQLite")
	t.Setenv("DEFAULT_CURRENCY", "sek")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("API_TOKEN", "s3cret")

	cfg := Load()
	if cfg.APIToken != "s3cret" {
		t.Errorf("APIToken = %q", cfg.APIToken)
	}
	if cfg.GeminiAPIKey != "legacy-key" {
		t.Errorf("GeminiAPIKey = %q, want fallback to API_KEY", cfg.GeminiAPIKey)
	}
	if cfg.StateBackend != BackendSQLite {
		t.Errorf("StateBackend = %q", cfg.StateBackend)
	}
	if cfg.DefaultCurrency != "SEK" {
		t.Errorf("DefaultCurrency = %q", cfg.DefaultCurrency)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty = false")
	}

	t.Setenv("GEMINI_API_KEY", "primary-key")
	if got := Load().GeminiAPIKey; got != "primary-key" {
		t.Errorf("GEMINI_API_KEY should win, got %q", got)
	}
}
