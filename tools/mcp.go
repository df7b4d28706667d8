package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psi-gfa/opsassist/internal/httpclient"
)

// ErrUnavailable is returned for calls against a server whose session could
// not be re-established.
var ErrUnavailable = errors.New("tool server unavailable")

// reconnectDelays is the backoff schedule for lazy session re-establishment.
var reconnectDelays = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	1600 * time.Millisecond,
}

// HTTPSource talks JSON-RPC 2.0 to one remote tool server over HTTP.
// Responses may arrive as plain JSON or as a server-sent-event stream.
// The session is opened once and reused across turns; on a transport error
// the next use reconnects with backoff.
type HTTPSource struct {
	name       string
	url        string
	httpClient *httpclient.Client

	mu        sync.Mutex
	sessionID string
	tools     map[string]ToolInfo
}

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CallParams represents parameters for tools/call.
type CallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func NewHTTPSource(name, url string) *HTTPSource {
	if name == "" {
		name = "mcp"
	}

	return &HTTPSource{
		name: name,
		url:  url,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithRetryStrategy(httpclient.NoRetryStrategy),
		),
		tools: make(map[string]ToolInfo),
	}
}

func (s *HTTPSource) Name() string {
	return s.name
}

// Discover opens the session and loads the server's tool descriptors.
func (s *HTTPSource) Discover(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("server URL not configured for source %s", s.name)
	}

	if err := s.ensureSession(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.name, err)
	}

	response, err := s.makeRequest(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to list tools from %s: %w", s.name, err)
	}
	if response.Error != nil {
		return fmt.Errorf("tool server error from %s: %s", s.name, response.Error.Message)
	}

	tools := parseToolList(response.Result)

	s.mu.Lock()
	s.tools = make(map[string]ToolInfo, len(tools))
	for _, info := range tools {
		info.ServerName = s.name
		s.tools[info.Name] = info
	}
	s.mu.Unlock()

	slog.Debug("discovered tools", "server", s.name, "count", len(tools))
	return nil
}

func (s *HTTPSource) List() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make([]ToolInfo, 0, len(s.tools))
	for _, info := range s.tools {
		tools = append(tools, info)
	}
	return tools
}

// Call sends one tools/call request on the session and awaits one response.
func (s *HTTPSource) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	fail := func(err error) (Result, error) {
		return Result{
			Success:       false,
			Error:         err.Error(),
			ToolName:      name,
			RequestID:     requestID,
			ExecutionTime: time.Since(start),
		}, err
	}

	if err := s.ensureSession(ctx); err != nil {
		return fail(err)
	}

	response, err := s.makeRequest(ctx, "tools/call", CallParams{Name: name, Arguments: args})
	if err != nil {
		// Session is suspect; reconnect lazily on next use.
		s.mu.Lock()
		s.sessionID = ""
		s.mu.Unlock()
		return fail(err)
	}

	if response.Error != nil {
		return fail(fmt.Errorf("tool server error: %s", response.Error.Message))
	}

	return Result{
		Success:       true,
		Content:       strings.TrimSpace(extractContent(response.Result)),
		ToolName:      name,
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
	}, nil
}

// ensureSession initializes the session if none is active, backing off
// between attempts. After the final failure the server is reported
// unavailable until a later call retries.
func (s *HTTPSource) ensureSession(ctx context.Context) error {
	s.mu.Lock()
	if s.sessionID != "" {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var lastErr error
	// First attempt is immediate; the backoff schedule spaces the retries.
	for attempt := 0; attempt <= len(reconnectDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(reconnectDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		sessionID, err := s.initialize(ctx)
		if err == nil {
			s.mu.Lock()
			s.sessionID = sessionID
			s.mu.Unlock()
			return nil
		}
		lastErr = err
		slog.Warn("tool server connect failed", "server", s.name, "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("%w: %s: %v", ErrUnavailable, s.name, lastErr)
}

// initialize performs the protocol handshake and returns the session id
// assigned by the server, if any.
func (s *HTTPSource) initialize(ctx context.Context) (string, error) {
	request := Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"clientInfo":      map[string]interface{}{"name": "opsassist", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	resp, body, err := s.post(ctx, request, "")
	if err != nil {
		return "", err
	}

	response, err := parseResponse(body)
	if err != nil {
		return "", err
	}
	if response.Error != nil {
		return "", fmt.Errorf("initialize failed: %s", response.Error.Message)
	}

	return resp.Header.Get("Mcp-Session-Id"), nil
}

// makeRequest sends one JSON-RPC request on the current session.
func (s *HTTPSource) makeRequest(ctx context.Context, method string, params interface{}) (*Response, error) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	request := Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}

	_, body, err := s.post(ctx, request, sessionID)
	if err != nil {
		return nil, err
	}

	return parseResponse(body)
}

func (s *HTTPSource) post(ctx context.Context, request Request, sessionID string) (*http.Response, []byte, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, strings.NewReader(string(requestBody)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp, body, nil
}

// parseResponse decodes a JSON-RPC response from either a plain JSON body or
// an SSE stream of data lines.
func parseResponse(body []byte) (*Response, error) {
	var response Response
	if err := json.Unmarshal(body, &response); err == nil {
		return &response, nil
	}

	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "data: ") {
			jsonData := strings.TrimPrefix(line, "data: ")
			if err := json.Unmarshal([]byte(jsonData), &response); err == nil {
				return &response, nil
			}
		}
	}

	return nil, fmt.Errorf("failed to parse response as JSON or SSE")
}

// parseToolList extracts tool descriptors from a tools/list result.
func parseToolList(result interface{}) []ToolInfo {
	var tools []ToolInfo

	resultMap, ok := result.(map[string]interface{})
	if !ok {
		return tools
	}
	toolsArray, ok := resultMap["tools"].([]interface{})
	if !ok {
		return tools
	}

	for _, toolItem := range toolsArray {
		tool, ok := toolItem.(map[string]interface{})
		if !ok {
			continue
		}

		info := ToolInfo{
			Name:        getString(tool, "name"),
			Description: getString(tool, "description"),
		}

		if schema, ok := tool["inputSchema"].(map[string]interface{}); ok {
			info.InputSchema = schema
			info.Parameters = parametersFromSchema(schema)
		}

		tools = append(tools, info)
	}

	return tools
}

// extractContent concatenates the text parts of a tools/call result.
func extractContent(result interface{}) string {
	var content strings.Builder

	if resultMap, ok := result.(map[string]interface{}); ok {
		if contentArray, ok := resultMap["content"].([]interface{}); ok {
			for _, item := range contentArray {
				if contentItem, ok := item.(map[string]interface{}); ok {
					if text, ok := contentItem["text"].(string); ok {
						content.WriteString(text)
						content.WriteString("\n")
					}
				}
			}
		}
	}

	return content.String()
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func isRequired(schema map[string]interface{}, paramName string) bool {
	if required, ok := schema["required"].([]interface{}); ok {
		for _, req := range required {
			if req == paramName {
				return true
			}
		}
	}
	return false
}
