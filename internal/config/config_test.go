package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"no turns", func(c *Config) { c.Debate.MaxTurns = 0 }},
		{"unknown provider", func(c *Config) { c.Sandbox.Provider = "docker" }},
		{"remote without key", func(c *Config) { c.Sandbox.Provider = "remote" }},
		{"local without command", func(c *Config) { c.Sandbox.Local.Command = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Server.Port = 9191
	cfg.Sandbox.SettleDelay = 4 * time.Second
	cfg.Sandbox.Local.Root = filepath.Join(t.TempDir(), "sandboxes")
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if os.Getenv("SERVER_PORT") == "" && loaded.Server.Port != 9191 {
		t.Errorf("expected port 9191, got %d", loaded.Server.Port)
	}
	if os.Getenv("SANDBOX_SETTLE_DELAY") == "" && loaded.Sandbox.SettleDelay != 4*time.Second {
		t.Errorf("expected settle delay 4s, got %v", loaded.Sandbox.SettleDelay)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Sandbox.ChainReadDelay <= 0 {
		t.Errorf("expected a default chain read delay")
	}
}

func TestGenerateExampleParses(t *testing.T) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(GenerateExample()), cfg); err != nil {
		t.Fatalf("example does not parse: %v", err)
	}
	if cfg.Sandbox.ChainReadDelay != 2*time.Second {
		t.Errorf("expected chain_read_delay 2s, got %v", cfg.Sandbox.ChainReadDelay)
	}
	if cfg.Sandbox.Remote.MaxRetries != 2 {
		t.Errorf("expected max_retries 2, got %d", cfg.Sandbox.Remote.MaxRetries)
	}
}

func TestCreateProvider(t *testing.T) {
	cfg := Default()
	cfg.Sandbox.Local.Root = t.TempDir()

	p, err := cfg.CreateProvider()
	if err != nil {
		t.Fatalf("CreateProvider failed: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("expected local provider, got %s", p.Name())
	}

	cfg.Sandbox.Provider = "remote"
	cfg.Sandbox.Remote.APIKey = "key"
	p, err = cfg.CreateProvider()
	if err != nil {
		t.Fatalf("CreateProvider failed: %v", err)
	}
	if p.Name() != "remote" {
		t.Errorf("expected remote provider, got %s", p.Name())
	}
}
