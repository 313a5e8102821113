package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", "app-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/medwaste")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != "8080" || cfg.Store != StorePostgres {
		t.Fatalf("Port, Store = %q, %q", cfg.Port, cfg.Store)
	}
	if cfg.HandoffTokenTTL != 24*time.Hour {
		t.Fatalf("HandoffTokenTTL = %v, want 24h", cfg.HandoffTokenTTL)
	}
	if cfg.HandoffTokenSecret != "app-secret" {
		t.Fatalf("HandoffTokenSecret = %q, want fallback to APP_JWT_SECRET", cfg.HandoffTokenSecret)
	}
	if cfg.ExpirySweepInterval != time.Minute || cfg.RouteProviderTimeout != 3*time.Second {
		t.Fatalf("sweep, timeout = %v, %v", cfg.ExpirySweepInterval, cfg.RouteProviderTimeout)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", "app-secret")
	t.Setenv("STORE", StoreMemory)
	t.Setenv("HANDOFF_TOKEN_SECRET", "link-secret")
	t.Setenv("HANDOFF_TOKEN_TTL", "2h")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "0s")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HandoffTokenSecret != "link-secret" || cfg.HandoffTokenTTL != 2*time.Hour {
		t.Fatalf("token settings = %q, %v", cfg.HandoffTokenSecret, cfg.HandoffTokenTTL)
	}
	if cfg.ExpirySweepInterval != 0 {
		t.Fatalf("ExpirySweepInterval = %v, want 0 (sweep disabled)", cfg.ExpirySweepInterval)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing jwt secret", map[string]string{"STORE": StoreMemory}, "APP_JWT_SECRET"},
		{"postgres without url", map[string]string{"APP_JWT_SECRET": "s"}, "DATABASE_URL"},
		{"unknown store", map[string]string{"APP_JWT_SECRET": "s", "STORE": "sqlite"}, "STORE"},
		{"zero ttl", map[string]string{"APP_JWT_SECRET": "s", "STORE": StoreMemory, "HANDOFF_TOKEN_TTL": "0s"}, "HANDOFF_TOKEN_TTL"},
		{"bad duration", map[string]string{"APP_JWT_SECRET": "s", "STORE": StoreMemory, "HANDOFF_TOKEN_TTL": "soon"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_JWT_SECRET", "")
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
