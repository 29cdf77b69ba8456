// Package tools is the invocation surface: an explicit registry mapping
// tool names to handlers with a JSON schema each. Dispatch is a map
// lookup populated at startup; there is no reflection and no runtime
// registration.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"webatlas/internal/logging"
)

// Handler executes one tool call. Params arrive as raw JSON matching the
// tool's declared schema.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Tool couples a handler with its wire description.
type Tool struct {
	Name        string
	Description string
	Schema      string // JSON schema for params
	Handler     Handler
}

// Registry is the name → tool table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Dispatch looks up and runs a tool.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	logging.Tools().Debug("dispatch", zap.String("tool", name))
	return t.Handler(ctx, params)
}

// List returns registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
