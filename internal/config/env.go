package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envKeys are the variables ApplyEnvOverrides understands.
var envKeys = []string{
	"SERVER_PORT",
	"BASE_URL",
	"DATABASE_PATH",
	"SANDBOX_PROVIDER",
	"SANDBOX_API_URL",
	"SANDBOX_API_KEY",
	"MORU_API_KEY",
	"ANTHROPIC_API_KEY",
	"AGENT_COMMAND",
	"DEBATE_MAX_TURNS",
	"SANDBOX_TIMEOUT",
	"SANDBOX_SETTLE_DELAY",
	"SANDBOX_CHAIN_READ_DELAY",
}

// LoadEnv reads a .env file and returns a map of key-value pairs.
func LoadEnv(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

// MergeProcessEnv overlays the process environment on top of env.
// Variables set in the process win over the .env file.
func MergeProcessEnv(env map[string]string) map[string]string {
	merged := make(map[string]string, len(env))
	for k, v := range env {
		merged[k] = v
	}
	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			merged[k] = v
		}
	}
	return merged
}

// ApplyEnvOverrides updates the configuration based on environment variables.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	// Server
	if val, ok := env["SERVER_PORT"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val, ok := env["BASE_URL"]; ok && val != "" {
		cfg.Server.BaseURL = val
	}

	if val, ok := env["DATABASE_PATH"]; ok && val != "" {
		cfg.Database.Path = val
	}

	// Sandbox
	if val, ok := env["SANDBOX_PROVIDER"]; ok && val != "" {
		cfg.Sandbox.Provider = val
	}
	if val, ok := env["SANDBOX_API_URL"]; ok && val != "" {
		cfg.Sandbox.Remote.APIURL = val
	}
	if val, ok := env["MORU_API_KEY"]; ok && val != "" {
		cfg.Sandbox.Remote.APIKey = val
	}
	// SANDBOX_API_KEY takes precedence over the vendor-specific name
	if val, ok := env["SANDBOX_API_KEY"]; ok && val != "" {
		cfg.Sandbox.Remote.APIKey = val
	}
	if val, ok := env["AGENT_COMMAND"]; ok {
		if fields := strings.Fields(val); len(fields) > 0 {
			cfg.Sandbox.Local.Command = fields[0]
			cfg.Sandbox.Local.Args = fields[1:]
			cfg.Sandbox.Remote.AgentCommand = val
		}
	}
	if d, ok := envDuration(env, "SANDBOX_TIMEOUT"); ok {
		cfg.Sandbox.Timeout = d
	}
	if d, ok := envDuration(env, "SANDBOX_SETTLE_DELAY"); ok {
		cfg.Sandbox.SettleDelay = d
	}
	if d, ok := envDuration(env, "SANDBOX_CHAIN_READ_DELAY"); ok {
		cfg.Sandbox.ChainReadDelay = d
	}

	// Debate
	if val, ok := env["DEBATE_MAX_TURNS"]; ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Debate.MaxTurns = n
		}
	}

	if val, ok := env["ANTHROPIC_API_KEY"]; ok && val != "" {
		cfg.Agent.AnthropicAPIKey = val
	}
}

// envDuration accepts plain seconds ("3") or a Go duration ("1500ms").
func envDuration(env map[string]string, key string) (time.Duration, bool) {
	val, ok := env[key]
	if !ok {
		return 0, false
	}
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	return 0, false
}
