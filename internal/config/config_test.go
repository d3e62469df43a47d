package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MONITOR_MAX_ENTRIES", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionStore != "memory" {
		t.Fatalf("expected memory session store, got %s", cfg.SessionStore)
	}
	if cfg.LLMProvider != "template" {
		t.Fatalf("expected template responder, got %s", cfg.LLMProvider)
	}
	if cfg.MonitorMaxEntries != 10000 {
		t.Fatalf("expected default monitor retention, got %d", cfg.MonitorMaxEntries)
	}
	if cfg.SessionTTL != 72*time.Hour {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected in-memory dispatch queue by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_STORE", " Redis ")
	t.Setenv("SESSION_TTL", "6h")
	t.Setenv("DISPATCH_LANES", "8")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("RESPONDER_MAX_RETRIES", "5")
	t.Setenv("NOTIFY_PROVIDER", "SES")
	t.Setenv("MONITOR_MAX_ENTRIES", "not-a-number")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("expected overrides, got port=%s env=%s", cfg.Port, cfg.Env)
	}
	if cfg.SessionStore != "redis" {
		t.Fatalf("expected normalized session store, got %q", cfg.SessionStore)
	}
	if cfg.SessionTTL != 6*time.Hour {
		t.Fatalf("expected ttl override, got %s", cfg.SessionTTL)
	}
	if cfg.DispatchLanes != 8 {
		t.Fatalf("expected lanes override, got %d", cfg.DispatchLanes)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.ResponderMaxRetries != 5 {
		t.Fatalf("expected retries override, got %d", cfg.ResponderMaxRetries)
	}
	if cfg.NotifyProvider != "ses" {
		t.Fatalf("expected normalized notify provider, got %q", cfg.NotifyProvider)
	}
	if cfg.MonitorMaxEntries != 10000 {
		t.Fatalf("expected fallback on invalid int, got %d", cfg.MonitorMaxEntries)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LEADFLOW_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LEADFLOW_TEST_KEY", "")
	os.Unsetenv("LEADFLOW_TEST_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("LEADFLOW_TEST_KEY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestLoadDotEnvMissingFileIsNoop(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
}

func TestLoadHTTPSettings(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("MESSAGE_RATE_LIMIT", "0.5")
	t.Setenv("MESSAGE_BURST", "")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.MessageRateLimit != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", cfg.MessageRateLimit)
	}
	if cfg.MessageBurst != 5 {
		t.Fatalf("expected default burst, got %d", cfg.MessageBurst)
	}
}
