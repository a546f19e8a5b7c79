package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sous-chef/internal/domain"
)

// Registry holds named tools. Registration happens once at startup;
// afterwards the registry is read-only and requires no locking on the hot
// path, but a mutex guards against misuse anyway.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string // registration order, the stable Schemas order
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on
// Register; compilation errors are logged and the tool is registered
// unwrapped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns error if name already registered.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Execute implements domain.ToolExecutor. It never returns a Go error: an
// unknown name and a failing executor both come back as an error-shaped
// ToolResult so the round controller and the fallback responder handle
// them uniformly, and one failure never aborts the round's sibling calls.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) *domain.ToolResult {
	t, err := r.Get(name)
	if err != nil {
		return &domain.ToolResult{
			Content: err.Error(),
			IsError: true,
		}
	}

	res, err := t.Execute(ctx, params)
	if err != nil {
		return &domain.ToolResult{
			Content: err.Error(),
			IsError: true,
		}
	}
	return res
}

// Schemas implements domain.ToolExecutor. The order is registration order,
// stable across calls for the process lifetime.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

var _ domain.ToolExecutor = (*Registry)(nil)
