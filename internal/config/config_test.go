package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "PROVIDER_TIMEOUT", "GEMINI_API_KEY", "HISTORY_TURNS", "FRONTEND_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PROVIDER_TIMEOUT", "20s")
	t.Setenv("HISTORY_TURNS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != "memory" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout.Provider != 20*time.Second {
		t.Errorf("provider timeout = %v", cfg.Timeout.Provider)
	}
	if cfg.ProviderConfigured() {
		t.Error("empty API key must not count as configured")
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit window = %v", cfg.RateLimit.Window)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DB_PATH", "/tmp/parla.db")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("PROVIDER_TIMEOUT", "7")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("HISTORY_TURNS", "6")
	t.Setenv("CONVERSATION_LOG_ENABLED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != "sqlite" || cfg.DBPath != "/tmp/parla.db" {
		t.Errorf("store = %q %q", cfg.StoreDriver, cfg.DBPath)
	}
	if cfg.Timeout.Provider != 7*time.Second {
		t.Errorf("bare seconds timeout = %v", cfg.Timeout.Provider)
	}
	if cfg.RateLimit.Requests != 5 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.HistoryTurns != 6 || !cfg.ConversationLog.Enabled || !cfg.ProviderConfigured() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("err = %v, want STORE_DRIVER error", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                "8080",
			StoreDriver:         "memory",
			HistoryTurns:        10,
			MaxRequestBodyBytes: 1024,
			Timeout:             TimeoutConfig{Provider: time.Second},
			RateLimit:           RateLimitConfig{Requests: 1, Window: time.Second},
			ConversationLog:     ConversationLogConfig{Dir: "d", GlobalPath: "g", QueueSize: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"sqlite without path", func(c *Config) { c.StoreDriver = "sqlite"; c.DBPath = "" }},
		{"zero history", func(c *Config) { c.HistoryTurns = 0 }},
		{"zero body limit", func(c *Config) { c.MaxRequestBodyBytes = 0 }},
		{"zero provider timeout", func(c *Config) { c.Timeout.Provider = 0 }},
		{"zero queue", func(c *Config) { c.ConversationLog.QueueSize = 0 }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	c := &Config{}
	if got := c.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("AllowedOrigins = %v", got)
	}
	c.FrontendURL = "https://parla.example/"
	if got := c.AllowedOrigins(); got[0] != "https://parla.example" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}
