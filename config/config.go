package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/liveeadmin/shai/errors"
	"gopkg.in/yaml.v3"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// URL selects the streamable HTTP transport instead of a subprocess.
	URL string `yaml:"url"`
	// BearerToken is forwarded as an Authorization header for OAuth-gated
	// remote servers.
	BearerToken string `yaml:"bearer_token"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Server configures the HTTP surface.
type Server struct {
	Address            string        `yaml:"address"`
	MaxSessions        int           `yaml:"max_sessions"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	// Ephemeral makes sessions created without an explicit id throwaway.
	Ephemeral bool `yaml:"ephemeral"`
}

// Retry bounds the backoff applied to retryable provider failures.
type Retry struct {
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	SystemPrompt         string           `yaml:"system_prompt"`
	TurnBudget           int              `yaml:"turn_budget"`
	ToolTimeout          time.Duration    `yaml:"tool_timeout"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
	Server               Server           `yaml:"server"`
	Retry                Retry            `yaml:"retry"`
}

const (
	DefaultTurnBudget  = 8
	DefaultToolTimeout = 2 * time.Minute
	DefaultMaxSessions = 100
	DefaultIdleTimeout = 30 * time.Minute
	DefaultAddress     = "127.0.0.1:8080"
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
)

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// The .shai directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".shai", ".shai/**")

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".shai", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".shai", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TurnBudget <= 0 {
		c.TurnBudget = DefaultTurnBudget
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.Server.MaxSessions <= 0 {
		c.Server.MaxSessions = DefaultMaxSessions
	}
	if c.Server.SessionIdleTimeout <= 0 {
		c.Server.SessionIdleTimeout = DefaultIdleTimeout
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BackoffBase <= 0 {
		c.Retry.BackoffBase = DefaultBackoffBase
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, giving a simple merge
	// where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided. A missing "default"
// toolset resolves to an empty toolset rather than an error, so a bare config
// still yields a working agent with no tools.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return &Toolset{Name: "default"}, nil
	}
	return c.GetToolset("default")
}
