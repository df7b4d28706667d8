// Package tools holds the tool registry and the transports to remote tool
// servers.
package tools

import (
	"context"
	"time"
)

// ToolInfo describes one tool as advertised by its server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
	ServerName  string          `json:"server_name,omitempty"`

	// InputSchema is the raw JSON schema from the server, kept for
	// argument validation before dispatch.
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// ToolParameter is one declared input parameter of a tool.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// Result is the outcome of a single tool execution.
type Result struct {
	Success       bool          `json:"success"`
	Content       string        `json:"content,omitempty"`
	Error         string        `json:"error,omitempty"`
	ToolName      string        `json:"tool_name"`
	RequestID     string        `json:"request_id,omitempty"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

// Source is a connection to one tool server.
type Source interface {
	Name() string

	Discover(ctx context.Context) error

	List() []ToolInfo

	Call(ctx context.Context, name string, args map[string]interface{}) (Result, error)
}
