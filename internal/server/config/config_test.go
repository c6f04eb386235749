package config

import (
	"strings"
	"testing"
)

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestVerify_Defaults(t *testing.T) {
	if err := Verify(validConfig(t)); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerify_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"missing addr", func(c *ServerConfig) { c.Server.Addr = "" }, "server.addr"},
		{"bad addr", func(c *ServerConfig) { c.Server.Addr = "no-port" }, "server.addr"},
		{"negative rate limit", func(c *ServerConfig) { c.Server.RateLimit = -1 }, "rate_limit"},
		{"missing data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "data_dir"},
		{"bad sync mode", func(c *ServerConfig) { c.Storage.WALSyncMode = "turbo" }, "wal_sync_mode"},
		{"negative snapshot interval", func(c *ServerConfig) { c.Storage.SnapshotInterval = -1 }, "snapshot_interval"},
		{"negative max bytes", func(c *ServerConfig) { c.Memory.MaxBytes = -1 }, "max_bytes"},
		{"bad policy", func(c *ServerConfig) { c.Memory.EvictionPolicy = "random" }, "eviction_policy"},
		{"bad metrics addr", func(c *ServerConfig) { c.Metrics.Enabled = true; c.Metrics.Addr = "nope" }, "metrics.addr"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Verify() error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestVerify_AcceptsAllPolicies(t *testing.T) {
	for _, policy := range []string{"noeviction", "allkeys-lru", "volatile-lru"} {
		cfg := validConfig(t)
		cfg.Memory.EvictionPolicy = policy
		if err := Verify(cfg); err != nil {
			t.Fatalf("Verify() with policy %q error = %v", policy, err)
		}
	}
}

func TestSanitize(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.Password = "hunter2secret"

	masked := Sanitize(cfg)
	if masked.Auth.Password == cfg.Auth.Password {
		t.Fatal("Sanitize() left password unmasked")
	}
	if !strings.Contains(masked.Auth.Password, "*") {
		t.Fatalf("Sanitize() password = %q, want masked", masked.Auth.Password)
	}
	// The original is untouched.
	if cfg.Auth.Password != "hunter2secret" {
		t.Fatal("Sanitize() mutated the input config")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.Password = "abc"
	if got := Sanitize(cfg).Auth.Password; got != "****" {
		t.Fatalf("Sanitize() short password = %q, want ****", got)
	}
}
