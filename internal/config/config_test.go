package config

import (
	"os"
	"testing"
	"time"
)

// chdir switches the working directory for the duration of the test,
// matching testing.T.Chdir on toolchains that predate it.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestNewConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.Storage != StoragePostgres {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("expected 24h token lifetime, got %s", cfg.JWTTTL)
	}
	if cfg.NotificationsEnabled() {
		t.Fatalf("notifications must be off without SMTP_HOST")
	}
}

func TestNewConfigReadsEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("JWT_TTL", "15m")
	t.Setenv("SMTP_HOST", "smtp.bank.test")
	t.Setenv("OPS_EMAIL", "ops@bank.test")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.Port != "9090" || cfg.Storage != StorageMemory || cfg.JWTTTL != 15*time.Minute {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if !cfg.NotificationsEnabled() {
		t.Fatalf("expected notifications to be enabled")
	}
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "empty jwt secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "empty encryption key", env: map[string]string{"ENCRYPTION_KEY": ""}},
		{name: "unknown storage", env: map[string]string{"STORAGE": "mongo"}},
		{name: "bad ttl", env: map[string]string{"JWT_TTL": "forever"}},
		{name: "half bootstrap admin", env: map[string]string{"BOOTSTRAP_ADMIN_USERNAME": "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := NewConfig(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
