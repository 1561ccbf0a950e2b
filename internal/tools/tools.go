// Package tools defines the tools the model may call during a
// conversation turn and dispatches tool calls to their backends.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/qunqin/chatbridge/internal/llm"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the enabled tools.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Backends register their tools
// through the Register* helpers in this package.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registered tools in the shape the chat
// completions API expects. Returns nil when no tools are enabled, so
// the request omits the tools field entirely.
func (r *Registry) Definitions() []map[string]any {
	if len(r.tools) == 0 {
		return nil
	}
	defs := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Execute runs a tool by name with raw JSON arguments. Unknown tool
// names and malformed arguments are explicit errors.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	return tool.Handler(ctx, args)
}

// Dispatch executes the tool call and folds any failure into a
// user-facing string. Callers can treat the result as always usable:
// it is either the tool output or a failure notice the model can relay.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) string {
	r.logger.Info("dispatching tool call",
		"tool", call.Function.Name, "call_id", call.ID)

	result, err := r.Execute(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		r.logger.Error("tool call failed",
			"tool", call.Function.Name, "call_id", call.ID, "error", err)
		return fmt.Sprintf("工具执行失败: %v", err)
	}
	return result
}

// stringSlice coerces a decoded JSON array into []string, skipping
// non-string elements.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
