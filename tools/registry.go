package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/psi-gfa/opsassist/config"
)

// ============================================================================
// REGISTRY - TOOL SYSTEM CORE
// ============================================================================

// RegistryError represents a tool registry error.
type RegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func NewRegistryError(component, action, message string, err error) *RegistryError {
	return &RegistryError{Component: component, Action: action, Message: message, Err: err}
}

type entry struct {
	info   ToolInfo
	source Source
}

// Registry merges tool descriptors from every configured server. It is
// populated once at session bootstrap and read-only afterwards.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterSource discovers tools from a server and merges them into the
// registry. Name conflicts resolve last-loaded-wins and are logged.
func (r *Registry) RegisterSource(ctx context.Context, source Source) error {
	if source.Name() == "" {
		return NewRegistryError("Registry", "RegisterSource", "source name cannot be empty", nil)
	}

	if err := source.Discover(ctx); err != nil {
		return NewRegistryError("Registry", "RegisterSource",
			fmt.Sprintf("failed to discover tools from %s", source.Name()), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, info := range source.List() {
		if existing, exists := r.entries[info.Name]; exists {
			slog.Warn("tool name conflict, overriding",
				"tool", info.Name,
				"previous_server", existing.source.Name(),
				"new_server", source.Name())
		}
		info.ServerName = source.Name()
		r.entries[info.Name] = entry{info: info, source: source}
	}

	slog.Info("registered tool server", "server", source.Name(), "tools", len(source.List()))
	return nil
}

// Get retrieves a tool descriptor by name.
func (r *Registry) Get(name string) (ToolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	return e.info, exists
}

// List returns all tool descriptors sorted by name for stable output.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolInfo, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.info)
	}

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})

	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Execute dispatches a tool call to its owning server under the per-call
// deadline.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		err := NewRegistryError("Registry", "Execute", fmt.Sprintf("tool %s not found", name), nil)
		return Result{Success: false, Error: err.Error(), ToolName: name}, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.ToolCallTimeout)
	defer cancel()

	return e.source.Call(ctx, name, args)
}
