package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the single entry point for all configuration.
type Config struct {
	Version     string `yaml:"version,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`

	LLM    LLMConfig    `yaml:"llm,omitempty"`
	ELOG   ELOGConfig   `yaml:"elog,omitempty"`
	Rerank RerankConfig `yaml:"rerank,omitempty"`
	Graph  GraphConfig  `yaml:"graph,omitempty"`

	ToolServers []ToolServerConfig `yaml:"tool_servers,omitempty"`

	Session SessionConfig `yaml:"session,omitempty"`
}

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := c.ELOG.Validate(); err != nil {
		return fmt.Errorf("elog validation failed: %w", err)
	}
	if err := c.Rerank.Validate(); err != nil {
		return fmt.Errorf("rerank validation failed: %w", err)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph validation failed: %w", err)
	}
	for i := range c.ToolServers {
		if err := c.ToolServers[i].Validate(); err != nil {
			return fmt.Errorf("tool server validation failed: %w", err)
		}
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}
	return nil
}

func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.LLM.SetDefaults()
	c.ELOG.SetDefaults()
	c.Rerank.SetDefaults()
	c.Graph.SetDefaults()
	for i := range c.ToolServers {
		c.ToolServers[i].SetDefaults()
	}
	c.Session.SetDefaults()
	if c.Session.Model == "" {
		c.Session.Model = c.LLM.Model
	}
	if c.Session.Temperature == 0 {
		c.Session.Temperature = c.LLM.Temperature
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:-default} references.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[3]
	})
}

// LoadEnvFiles loads environment variables from .env files.
// Priority order: .env.local over .env over the process environment.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads, env-expands, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadFromString(string(data))
}

// LoadFromString loads configuration from a YAML string.
func LoadFromString(content string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(content)), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
