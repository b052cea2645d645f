package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/infrastructure/metrics"
)

type entry struct {
	definition Definition
	handler    Handler
}

// Registry maps tool names to their schema and handler. Registration happens
// at startup; lookups and execution are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(def Definition, h Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	if h == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = entry{definition: def, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns the handler for a tool name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Definitions returns all tool schemas in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].definition)
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Execute runs a parsed call. An unregistered name and a handler failure are
// both fatal run errors; tool execution is never retried.
func (r *Registry) Execute(ctx context.Context, call Call) (string, error) {
	handler, ok := r.Get(call.Name)
	if !ok {
		metrics.RecordToolCall(call.Name, "unknown", 0)
		return "", agenterrors.UnknownTool(call.Name)
	}

	started := time.Now()
	output, err := handler(ctx, call.Arguments)
	if err != nil {
		metrics.RecordToolCall(call.Name, "error", time.Since(started).Seconds())
		return "", agenterrors.WrapFatal(err, agenterrors.ErrCodeToolExecution,
			fmt.Sprintf("tool %s failed", call.Name))
	}
	metrics.RecordToolCall(call.Name, "success", time.Since(started).Seconds())
	return output, nil
}
