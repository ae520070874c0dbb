package config

import (
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_ADDR", "ALLOWED_ORIGINS", "DATABASE_URL",
		"REDIS_URL", "REDIS_PASSWORD", "JWT_SECRET", "SESSION_IDLE_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadConfig()

	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Server.Addr)
	}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, []string{"*"}) {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %q, want empty (mirror disabled)", cfg.Redis.URL)
	}
	if cfg.Session.IdleTTL != 30*time.Second {
		t.Errorf("IdleTTL = %v, want 30s", cfg.Session.IdleTTL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", ":9100")
	t.Setenv("ALLOWED_ORIGINS", "https://biliard.example.com, https://admin.example.com")
	t.Setenv("DATABASE_URL", "postgres://app:app@db:5432/biliard")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SESSION_IDLE_TTL_SECONDS", "120")

	cfg := LoadConfig()

	if cfg.Server.Addr != ":9100" {
		t.Errorf("Addr = %q, want :9100", cfg.Server.Addr)
	}
	want := []string{"https://biliard.example.com", "https://admin.example.com"}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.Server.AllowedOrigins, want)
	}
	if cfg.Database.DSN != "postgres://app:app@db:5432/biliard" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Redis.URL != "redis://cache:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.Session.IdleTTL != 120*time.Second {
		t.Errorf("IdleTTL = %v, want 120s", cfg.Session.IdleTTL)
	}
}

func TestGetDurationInvalidFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "soon"},
		{"zero", "0"},
		{"negative", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SESSION_IDLE_TTL_SECONDS", tt.value)
			if got := getDuration("SESSION_IDLE_TTL_SECONDS", 30); got != 30*time.Second {
				t.Errorf("getDuration = %v, want default 30s", got)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "*", []string{"*"}},
		{"spaced", "a, b ,c", []string{"a", "b", "c"}},
		{"empty entries dropped", "a,,b,", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitList(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
