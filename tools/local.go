package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tool is one in-process tool. Builtin tools run inside the assistant
// binary and need no server round trip.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// LocalSource serves in-process tools through the same Source interface
// the remote transports implement, so the registry treats both alike.
type LocalSource struct {
	name  string
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewLocalSource(name string) *LocalSource {
	if name == "" {
		name = "local"
	}
	return &LocalSource{
		name:  name,
		tools: make(map[string]Tool),
	}
}

func (s *LocalSource) Name() string {
	return s.name
}

// Register adds a tool to the source. Names must be unique per source.
func (s *LocalSource) Register(tool Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := tool.Info().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := s.tools[name]; exists {
		return fmt.Errorf("tool %s already registered in source %s", name, s.name)
	}
	s.tools[name] = tool
	return nil
}

// Discover is a no-op: local tools are registered, not discovered.
func (s *LocalSource) Discover(ctx context.Context) error {
	return nil
}

func (s *LocalSource) List() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(s.tools))
	for _, tool := range s.tools {
		info := tool.Info()
		info.ServerName = s.name
		infos = append(infos, info)
	}
	return infos
}

func (s *LocalSource) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	s.mu.RLock()
	tool, exists := s.tools[name]
	s.mu.RUnlock()

	if !exists {
		err := fmt.Errorf("tool %s not found in source %s", name, s.name)
		return Result{Success: false, Error: err.Error(), ToolName: name, RequestID: requestID}, err
	}

	content, err := tool.Execute(ctx, args)
	if err != nil {
		return Result{
			Success:       false,
			Error:         err.Error(),
			ToolName:      name,
			RequestID:     requestID,
			ExecutionTime: time.Since(start),
		}, err
	}

	return Result{
		Success:       true,
		Content:       content,
		ToolName:      name,
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
	}, nil
}
