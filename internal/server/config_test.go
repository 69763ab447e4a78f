package server

import (
	"testing"
	"time"
)

// TestNewConfigDefaults verifies that the default configuration carries the
// documented values.
func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != 3501 {
		t.Errorf("Expected default port 3501, got %d", cfg.Port)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected default max message size 512, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected default rate limit: %+v", cfg.RateLimit)
	}
	if cfg.SendTimeout != 20*time.Second {
		t.Errorf("Expected default send timeout 20s, got %v", cfg.SendTimeout)
	}
	if cfg.Environment != "dev" || cfg.LogLevel != "info" {
		t.Errorf("Unexpected default environment/log level: %q/%q", cfg.Environment, cfg.LogLevel)
	}
}

// TestConfigSanitize verifies that invalid settings fall back to defaults.
func TestConfigSanitize(t *testing.T) {
	cfg := Config{
		Port:           -1,
		MaxMessageSize: 0,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		SendTimeout:    0,
	}.Sanitize()

	if cfg.Port != 3501 {
		t.Errorf("Expected sanitized port 3501, got %d", cfg.Port)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected sanitized max message size 512, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected sanitized rate limit: %+v", cfg.RateLimit)
	}
	if cfg.SendTimeout != 20*time.Second {
		t.Errorf("Expected sanitized send timeout 20s, got %v", cfg.SendTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected sanitized log level info, got %q", cfg.LogLevel)
	}
}

// TestConfigAddr verifies the listen-address format.
func TestConfigAddr(t *testing.T) {
	cfg := Config{Port: 9000}
	if cfg.Addr() != ":9000" {
		t.Errorf("Expected :9000, got %q", cfg.Addr())
	}
}

// TestNewConfigFromEnv verifies that each setting is loaded from its
// environment variable.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("SEND_TIMEOUT", "5")
	t.Setenv("APP_STATIC_PATH", "/srv/static")
	t.Setenv("APP_ENVIRONMENT", "prod")
	t.Setenv("APP_LOG_LEVEL", "DEBUG")

	cfg := NewConfigFromEnv()

	if cfg.Port != 4000 {
		t.Errorf("Expected port 4000, got %d", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.example" || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("Unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("Expected max message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("Unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.SendTimeout != 5*time.Second {
		t.Errorf("Expected send timeout 5s, got %v", cfg.SendTimeout)
	}
	if cfg.StaticPath != "/srv/static" {
		t.Errorf("Expected static path /srv/static, got %q", cfg.StaticPath)
	}
	if cfg.Environment != "prod" {
		t.Errorf("Expected environment prod, got %q", cfg.Environment)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level lowered to debug, got %q", cfg.LogLevel)
	}
}

// TestNewConfigFromEnvInvalidValues verifies that unparsable values keep the
// defaults instead of failing.
func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("RATE_LIMIT_BURST", "zero")

	cfg := NewConfigFromEnv()

	if cfg.Port != 3501 {
		t.Errorf("Expected default port on bad input, got %d", cfg.Port)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("Expected default max message size on bad input, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Errorf("Expected default burst on bad input, got %d", cfg.RateLimit.Burst)
	}
}
