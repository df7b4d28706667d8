// Package config provides configuration types and loading for the assistant.
package config

import (
	"fmt"
	"time"
)

// ============================================================================
// LLM CONFIGURATION
// ============================================================================

// LLMConfig configures the chat model endpoint.
type LLMConfig struct {
	Host        string  `yaml:"host,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Timeout     int     `yaml:"timeout,omitempty"`      // seconds, non-streaming calls
	IdleTimeout int     `yaml:"idle_timeout,omitempty"` // seconds, max gap between streamed tokens
}

func (c *LLMConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", c.Temperature)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	return nil
}

func (c *LLMConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "qwen3:30b"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 45
	}
}

// ============================================================================
// TOOL SERVER CONFIGURATION
// ============================================================================

// ToolServerConfig describes one remote tool server.
type ToolServerConfig struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport,omitempty"` // "http" or "stdio"
	URL       string   `yaml:"url,omitempty"`
	Command   string   `yaml:"command,omitempty"`
	Args      []string `yaml:"args,omitempty"`
}

func (c *ToolServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("tool server name is required")
	}
	switch c.Transport {
	case "http":
		if c.URL == "" {
			return fmt.Errorf("url is required for http tool server %s", c.Name)
		}
	case "stdio":
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio tool server %s", c.Name)
		}
	default:
		return fmt.Errorf("unsupported transport %q for tool server %s", c.Transport, c.Name)
	}
	return nil
}

func (c *ToolServerConfig) SetDefaults() {
	if c.Transport == "" {
		c.Transport = "http"
	}
}

// ============================================================================
// ELOG CONFIGURATION
// ============================================================================

// ELOGConfig configures the electronic logbook backend.
type ELOGConfig struct {
	URL     string `yaml:"url,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds
}

func (c *ELOGConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("elog url is required")
	}
	return nil
}

func (c *ELOGConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

// ============================================================================
// RERANK CONFIGURATION
// ============================================================================

// RerankConfig configures the cross-encoder scoring endpoint.
type RerankConfig struct {
	URL            string  `yaml:"url,omitempty"`
	Model          string  `yaml:"model,omitempty"`
	HalfLifeHours  float64 `yaml:"half_life_hours,omitempty"`
	MaxPerCategory int     `yaml:"max_per_category,omitempty"`
}

func (c *RerankConfig) Validate() error {
	if c.HalfLifeHours < 0 {
		return fmt.Errorf("half_life_hours must not be negative")
	}
	if c.MaxPerCategory < 1 {
		return fmt.Errorf("max_per_category must be at least 1, got %d", c.MaxPerCategory)
	}
	return nil
}

func (c *RerankConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "BAAI/bge-reranker-v2-m3"
	}
	if c.HalfLifeHours == 0 {
		c.HalfLifeHours = 48
	}
	if c.MaxPerCategory == 0 {
		c.MaxPerCategory = 5
	}
}

// ============================================================================
// KNOWLEDGE GRAPH CONFIGURATION
// ============================================================================

// GraphConfig configures the knowledge-graph retrieval facade.
type GraphConfig struct {
	URL     string `yaml:"url,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds
}

func (c *GraphConfig) Validate() error {
	return nil
}

func (c *GraphConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

// ============================================================================
// SESSION CONFIGURATION
// ============================================================================

// SessionConfig carries the turn-scoped options recognized by the agent.
type SessionConfig struct {
	Model                string  `yaml:"model,omitempty"`
	Temperature          float64 `yaml:"temperature,omitempty"`
	SystemPromptTemplate string  `yaml:"system_prompt_template,omitempty"`
	ToolsEnabled         *bool   `yaml:"tools_enabled,omitempty"`
	MaxIterations        int     `yaml:"max_iterations,omitempty"`
	MaxHistoryMessages   int     `yaml:"max_history_messages,omitempty"`
}

func (c *SessionConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.MaxHistoryMessages < 0 {
		return fmt.Errorf("max_history_messages must not be negative, got %d", c.MaxHistoryMessages)
	}
	return nil
}

func (c *SessionConfig) SetDefaults() {
	if c.ToolsEnabled == nil {
		enabled := true
		c.ToolsEnabled = &enabled
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.MaxHistoryMessages == 0 {
		c.MaxHistoryMessages = 6
	}
}

// Enabled reports whether tool use is enabled for the session.
func (c *SessionConfig) Enabled() bool {
	return c.ToolsEnabled == nil || *c.ToolsEnabled
}

// ============================================================================
// LOGGING CONFIGURATION
// ============================================================================

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

func (c *LoggingConfig) Validate() error {
	switch c.Format {
	case "", "simple", "verbose":
	default:
		return fmt.Errorf("unsupported log format %q", c.Format)
	}
	return nil
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// ToolCallTimeout is the per-call deadline applied to every tool execution.
const ToolCallTimeout = 30 * time.Second
