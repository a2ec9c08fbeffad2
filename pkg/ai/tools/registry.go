package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/quka-ai/supportchat/pkg/ai"
)

// Tool is an invokable tool that can also describe its parameters.
type Tool interface {
	tool.InvokableTool
	Name() string
	Parameters() map[string]*schema.ParameterInfo
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	_, exists := r.tools[t.Name()]
	r.tools[t.Name()] = t
	r.mu.Unlock()

	if exists {
		slog.Warn("tool is already registered, overwriting", slog.String("tool", t.Name()), slog.String("component", "tools"))
	}
	slog.Info("tool registered", slog.String("tool", t.Name()), slog.String("component", "tools"))
}

func (r *Registry) RegisterMany(tools ...Tool) {
	for _, t := range tools {
		r.Register(t)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns the registered tools ordered by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Definitions describes every registered tool for the llm.
func (r *Registry) Definitions(ctx context.Context) ([]ai.ToolDefinition, error) {
	all := r.All()
	defs := make([]ai.ToolDefinition, 0, len(all))
	for _, t := range all {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe tool %s, %w", t.Name(), err)
		}
		defs = append(defs, ai.ToolDefinition{
			Name:        info.Name,
			Description: info.Desc,
			Parameters:  t.Parameters(),
		})
	}
	return defs, nil
}

// Execute runs the named tool with JSON encoded arguments.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("Tool not found: %s", name)
	}

	slog.Debug("executing tool", slog.String("tool", name), slog.String("arguments", arguments), slog.String("component", "tools"))

	start := time.Now()
	result, err := t.InvokableRun(ctx, arguments)
	if err != nil {
		slog.Error("tool execution failed", slog.String("tool", name), slog.String("error", err.Error()), slog.String("component", "tools"))
		return "", err
	}

	slog.Info("tool execution successful", slog.String("tool", name),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()), slog.String("component", "tools"))
	return result, nil
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.tools = make(map[string]Tool)
	r.mu.Unlock()
	slog.Info("all tools cleared from registry", slog.String("component", "tools"))
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
