package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
auth:
  jwt_secret: test-secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server defaults: %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Path != "data/docflow.db" {
		t.Errorf("unexpected database path: %s", cfg.Database.Path)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("unexpected pool defaults: %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected token TTL: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Logger.Level != "info" || cfg.Logger.Format != "json" {
		t.Errorf("unexpected logger defaults: %s/%s", cfg.Logger.Level, cfg.Logger.Format)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	viper.Reset()
	path := writeConfigFile(t, `
server:
  port: 9090
  read_timeout: 10s
database:
  path: /tmp/test.db
auth:
  jwt_secret: file-secret
  token_ttl: 1h
logger:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("expected database path override, got %s", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("expected jwt secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("expected 1h token TTL, got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logger.Level)
	}
}

func TestLoad_EnvOverridesSecret(t *testing.T) {
	viper.Reset()
	t.Setenv("DOCFLOW_JWT_SECRET", "env-secret")
	path := writeConfigFile(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("expected jwt secret from environment, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	viper.Reset()
	os.Unsetenv("DOCFLOW_JWT_SECRET")
	path := writeConfigFile(t, `
server:
  port: 8080
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "data/docflow.db"},
			Auth:     AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, true},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
