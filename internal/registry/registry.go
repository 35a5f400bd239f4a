// Package registry hosts the tools generated from a recording. Tool source is
// interpreted at runtime, so a regenerated file can be picked up without
// rebuilding or restarting the host.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Tool is one callable operation generated from a captured endpoint.
type Tool func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Registry is the live name-to-tool table. Safe for concurrent use; Reload
// swaps a source file's registrations atomically.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("registry"),
		tools:  make(map[string]Tool),
	}
}

// RegisterTool adds or replaces a tool.
func (r *Registry) RegisterTool(name string, tool Tool) error {
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool == nil {
		return fmt.Errorf("tool %q must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		r.logger.Debug("Replacing registered tool.", zap.String("tool", name))
	}
	r.tools[name] = tool
	return nil
}

// Lookup returns the tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists registered tools in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute invokes a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return tool(ctx, args)
}

// replaceFrom removes the previous registrations of one source and installs
// the staged set in their place.
func (r *Registry) replaceFrom(oldNames []string, staged map[string]Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range oldNames {
		delete(r.tools, name)
	}
	for name, tool := range staged {
		r.tools[name] = tool
	}
}
