package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
linear:
  api_key: lin_test_key
github:
  token: ghp_test_token
  username: adam-bot
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval)
	}
	if cfg.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want main", cfg.BaseBranch)
	}
	if cfg.ReposDir != "repos" {
		t.Errorf("ReposDir = %q, want repos", cfg.ReposDir)
	}
	if cfg.Claude.Command != "claude" {
		t.Errorf("Claude.Command = %q", cfg.Claude.Command)
	}
	if cfg.Lock.SettleDelay != 2*time.Second {
		t.Errorf("Lock.SettleDelay = %v, want 2s", cfg.Lock.SettleDelay)
	}
	if cfg.API.Port != 8880 || !cfg.API.Enabled {
		t.Errorf("API = %+v, want enabled on 8880", cfg.API)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
poll_interval: 5s
base_branch: develop
api:
  enabled: false
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q, want develop", cfg.BaseBranch)
	}
	if cfg.API.Enabled {
		t.Error("API.Enabled = true, want false")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_LINEAR_KEY", "lin_from_env")
	cfg, err := Load(writeConfig(t, `
linear:
  api_key: ${TEST_LINEAR_KEY}
github:
  token: ghp_test_token
  username: adam-bot
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Linear.APIKey != "lin_from_env" {
		t.Errorf("Linear.APIKey = %q, want value from environment", cfg.Linear.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing linear key", func(c *Config) { c.Linear.APIKey = "" }, true},
		{"missing github token", func(c *Config) { c.GitHub.Token = "" }, true},
		{"missing github username", func(c *Config) { c.GitHub.Username = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Linear.APIKey = "key"
			cfg.GitHub.Token = "token"
			cfg.GitHub.Username = "adam-bot"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
