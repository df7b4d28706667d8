package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioSource runs a local tool server as a subprocess and talks to it over
// stdio using the mcp-go client.
type StdioSource struct {
	name    string
	command string
	args    []string
	env     []string

	mu     sync.Mutex
	client *client.Client
	tools  map[string]ToolInfo
}

func NewStdioSource(name, command string, args []string, env []string) *StdioSource {
	if name == "" {
		name = "stdio"
	}
	return &StdioSource{
		name:    name,
		command: command,
		args:    args,
		env:     env,
		tools:   make(map[string]ToolInfo),
	}
}

func (s *StdioSource) Name() string {
	return s.name
}

// Discover starts the subprocess, performs the handshake and loads the tool
// descriptors.
func (s *StdioSource) Discover(ctx context.Context) error {
	if s.command == "" {
		return fmt.Errorf("command not configured for source %s", s.name)
	}

	mcpClient, err := client.NewStdioMCPClient(s.command, s.env, s.args...)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", s.name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "opsassist", Version: "1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize %s: %w", s.name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools from %s: %w", s.name, err)
	}

	tools := make(map[string]ToolInfo, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		schema := convertSchema(mcpTool.InputSchema)
		info := ToolInfo{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			ServerName:  s.name,
			InputSchema: schema,
		}
		info.Parameters = parametersFromSchema(schema)
		tools[mcpTool.Name] = info
	}

	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
	}
	s.client = mcpClient
	s.tools = tools
	s.mu.Unlock()

	slog.Info("connected to tool server (stdio)", "server", s.name, "command", s.command, "tools", len(tools))
	return nil
}

func (s *StdioSource) List() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make([]ToolInfo, 0, len(s.tools))
	for _, info := range s.tools {
		tools = append(tools, info)
	}
	return tools
}

func (s *StdioSource) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	s.mu.Lock()
	mcpClient := s.client
	s.mu.Unlock()

	if mcpClient == nil {
		err := fmt.Errorf("tool server %s not connected", s.name)
		return Result{Success: false, Error: err.Error(), ToolName: name, RequestID: requestID}, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return Result{
			Success:       false,
			Error:         err.Error(),
			ToolName:      name,
			RequestID:     requestID,
			ExecutionTime: time.Since(start),
		}, err
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.TrimSpace(strings.Join(texts, "\n"))

	if resp.IsError {
		if joined == "" {
			joined = "unknown error"
		}
		err := fmt.Errorf("tool error: %s", joined)
		return Result{
			Success:       false,
			Error:         joined,
			ToolName:      name,
			RequestID:     requestID,
			ExecutionTime: time.Since(start),
		}, err
	}

	return Result{
		Success:       true,
		Content:       joined,
		ToolName:      name,
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
	}, nil
}

// Close terminates the subprocess.
func (s *StdioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		s.tools = make(map[string]ToolInfo)
		return err
	}
	return nil
}

// convertSchema normalizes an mcp-go schema into a plain map.
func convertSchema(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// parametersFromSchema flattens a JSON schema into parameter descriptors.
func parametersFromSchema(schema map[string]interface{}) []ToolParameter {
	if schema == nil {
		return nil
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	var params []ToolParameter
	for paramName, paramData := range properties {
		param, ok := paramData.(map[string]interface{})
		if !ok {
			continue
		}

		toolParam := ToolParameter{
			Name:        paramName,
			Type:        getString(param, "type"),
			Description: getString(param, "description"),
			Required:    isRequired(schema, paramName),
		}

		if enum, ok := param["enum"].([]interface{}); ok {
			for _, val := range enum {
				if strVal, ok := val.(string); ok {
					toolParam.Enum = append(toolParam.Enum, strVal)
				}
			}
		}
		if defaultVal, ok := param["default"]; ok {
			toolParam.Default = defaultVal
		}

		params = append(params, toolParam)
	}

	// Map iteration order is random; keep descriptor order stable.
	sort.Slice(params, func(i, j int) bool {
		return params[i].Name < params[j].Name
	})

	return params
}
