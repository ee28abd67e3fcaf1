// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/sandbox"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Debate    DebateConfig    `yaml:"debate"`
	Agent     AgentConfig     `yaml:"agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// BaseURL is the externally reachable address agents call back to.
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SandboxConfig selects and tunes the agent sandbox provider.
type SandboxConfig struct {
	Provider       string              `yaml:"provider"` // "local" or "remote"
	Timeout        time.Duration       `yaml:"timeout"`
	SettleDelay    time.Duration       `yaml:"settle_delay"`
	ChainReadDelay time.Duration       `yaml:"chain_read_delay"`
	Local          LocalSandboxConfig  `yaml:"local"`
	Remote         RemoteSandboxConfig `yaml:"remote"`
}

// LocalSandboxConfig runs agents as child processes.
type LocalSandboxConfig struct {
	Root    string   `yaml:"root"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// RemoteSandboxConfig talks to a hosted sandbox API.
type RemoteSandboxConfig struct {
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key,omitempty"`
	Template     string `yaml:"template"`
	AgentCommand string `yaml:"agent_command"`
	MaxRetries   int    `yaml:"max_retries"`
}

// DebateConfig holds debate defaults.
type DebateConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// AgentConfig holds credentials handed to every agent.
type AgentConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`
}

// RateLimitConfig throttles audience votes and comments per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8182,
			BaseURL: "http://localhost:8182",
		},
		Database: DatabaseConfig{
			Path: defaultPath("toron.db"),
		},
		Sandbox: SandboxConfig{
			Provider:       "local",
			Timeout:        sandbox.DefaultTimeout,
			SettleDelay:    3 * time.Second,
			ChainReadDelay: 2 * time.Second,
			Local: LocalSandboxConfig{
				Root:    defaultPath("sandboxes"),
				Command: "npx",
				Args:    []string{"tsx", "agent/src/agent.ts"},
			},
			Remote: RemoteSandboxConfig{
				APIURL:       sandbox.DefaultAPIURL,
				Template:     sandbox.DefaultTemplate,
				AgentCommand: sandbox.DefaultAgentCommand,
				MaxRetries:   2,
			},
		},
		Debate: DebateConfig{
			MaxTurns: core.DefaultMaxTurns,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             10,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path, then applies
// overrides from .env and the process environment.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	env, err := LoadEnv(".env")
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	ApplyEnvOverrides(cfg, MergeProcessEnv(env))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base_url is required")
	}
	if c.Debate.MaxTurns <= 0 {
		return fmt.Errorf("debate max_turns must be positive, got %d", c.Debate.MaxTurns)
	}

	switch c.Sandbox.Provider {
	case "local":
		if c.Sandbox.Local.Command == "" {
			return fmt.Errorf("sandbox local command is required")
		}
	case "remote":
		if c.Sandbox.Remote.APIKey == "" {
			return fmt.Errorf("sandbox remote api_key is required")
		}
	default:
		return fmt.Errorf("unknown sandbox provider %q", c.Sandbox.Provider)
	}

	return nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// AgentSettings returns what every agent launch needs.
func (c *Config) AgentSettings() sandbox.AgentConfig {
	return sandbox.AgentConfig{
		BaseURL:         c.Server.BaseURL,
		AnthropicAPIKey: c.Agent.AnthropicAPIKey,
	}
}

// CreateProvider creates the configured sandbox provider.
func (c *Config) CreateProvider() (sandbox.Provider, error) {
	switch c.Sandbox.Provider {
	case "local":
		p, err := sandbox.NewLocalProvider(sandbox.LocalConfig{
			Root:    c.Sandbox.Local.Root,
			Command: c.Sandbox.Local.Command,
			Args:    c.Sandbox.Local.Args,
			Timeout: c.Sandbox.Timeout,
		}, c.AgentSettings())
		if err != nil {
			return nil, fmt.Errorf("failed to create local sandbox provider: %w", err)
		}
		return p, nil
	case "remote":
		return sandbox.NewRemoteProvider(sandbox.RemoteConfig{
			APIURL:       c.Sandbox.Remote.APIURL,
			APIKey:       c.Sandbox.Remote.APIKey,
			Template:     c.Sandbox.Remote.Template,
			AgentCommand: c.Sandbox.Remote.AgentCommand,
			Timeout:      c.Sandbox.Timeout,
			MaxRetries:   c.Sandbox.Remote.MaxRetries,
		}, c.AgentSettings()), nil
	default:
		return nil, fmt.Errorf("unknown sandbox provider %q", c.Sandbox.Provider)
	}
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".toron", name)
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return defaultPath("config.yaml")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# toron configuration file
# Place this file at ~/.toron/config.yaml

server:
  port: 8182
  base_url: http://localhost:8182   # Address agents use for their completion callback

database:
  path: ~/.toron/toron.db

sandbox:
  provider: local            # local or remote
  timeout: 30m               # Lifetime of one agent sandbox
  settle_delay: 3s           # Wait before killing a finished sandbox
  chain_read_delay: 2s       # Wait before reading a transcript to chain ai-vs-ai turns
  local:
    root: ~/.toron/sandboxes
    command: npx
    args: ["tsx", "agent/src/agent.ts"]
  remote:
    api_url: https://api.moru.io
    api_key: ""              # Or set MORU_API_KEY
    template: toron-agent
    agent_command: npx tsx /app/agent.mts
    max_retries: 2           # Retry transient API failures (total 3 attempts)

debate:
  max_turns: 5               # Default turn limit for ai-vs-ai debates

agent:
  anthropic_api_key: ""      # Or set ANTHROPIC_API_KEY

rate_limit:
  requests_per_second: 2     # Audience votes and comments per client
  burst: 10
`
	return example
}
