package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.App.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"empty vault path", func(c *Config) { c.Vault.Path = "" }},
		{"empty sqlite path", func(c *Config) { c.SQLite.Path = "" }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }},
		{"token mode without token", func(c *Config) { c.Auth.Mode = AuthModeToken }},
		{"empty model", func(c *Config) { c.Summarizer.Model = "" }},
		{"bad whisper model", func(c *Config) { c.Transcriber.Model = "gigantic" }},
		{"excess concurrency", func(c *Config) { c.Pipeline.Concurrency = 128 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestAuthModeDefaultsToDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Auth.Mode != AuthModeDisabled {
		t.Errorf("Mode = %q", cfg.Auth.Mode)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("AuthEnabled with disabled mode")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "  sk-ant-test  ")

	var c SummarizerConfig
	key, err := c.APIKey()
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "sk-ant-test" {
		t.Errorf("key = %q", key)
	}
}

func TestAPIKeyFromFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "")

	path := filepath.Join(t.TempDir(), "anthropic.key")
	if err := os.WriteFile(path, []byte("sk-ant-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := SummarizerConfig{APIKeyFile: path}
	key, err := c.APIKey()
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "sk-ant-from-file" {
		t.Errorf("key = %q", key)
	}
}

func TestAPIKeyEnvTakesPrecedence(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-ant-env")

	path := filepath.Join(t.TempDir(), "anthropic.key")
	if err := os.WriteFile(path, []byte("sk-ant-file"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := SummarizerConfig{APIKeyFile: path}
	key, err := c.APIKey()
	if err != nil {
		t.Fatal(err)
	}
	if key != "sk-ant-env" {
		t.Errorf("key = %q", key)
	}
}

func TestAPIKeyMissing(t *testing.T) {
	t.Setenv(EnvAPIKey, "")

	var c SummarizerConfig
	if _, err := c.APIKey(); err == nil {
		t.Fatal("want error when no credential source exists")
	}
}

func TestViewNeverLeaksCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = AuthModeToken
	cfg.Auth.Token = "super-secret-token"
	cfg.Summarizer.APIKeyFile = "/secrets/anthropic.key"

	view := cfg.View()

	auth := view["auth"].(map[string]any)
	if auth["token"] != "********" {
		t.Errorf("token in view = %v", auth["token"])
	}

	// The summarizer section carries tuning knobs only, never key material.
	summ := view["summarizer"].(map[string]any)
	for k, v := range summ {
		if s, ok := v.(string); ok && strings.Contains(s, "secret") {
			t.Errorf("summarizer.%s leaks %q", k, s)
		}
	}
	if _, ok := summ["api_key_file"]; ok {
		t.Error("api_key_file exposed in view")
	}
}

func TestViewMasksTokenOnlyWhenSet(t *testing.T) {
	cfg := NewDefaultConfig()
	auth := cfg.View()["auth"].(map[string]any)
	if auth["token"] != "" {
		t.Errorf("empty token rendered as %v", auth["token"])
	}
}

func TestHTTPAddress(t *testing.T) {
	c := HTTPConfig{Port: 9090}
	if c.Address() != ":9090" {
		t.Errorf("Address = %q", c.Address())
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	if got := ExpandHome("~/vault"); got != filepath.Join(home, "vault") {
		t.Errorf("ExpandHome(~/vault) = %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
	if got := ExpandHome("~user/vault"); got != "~user/vault" {
		t.Errorf("ExpandHome(~user/vault) = %q", got)
	}
}
