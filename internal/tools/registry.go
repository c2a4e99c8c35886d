package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/MEKXH/warden/internal/executor"
)

// ErrUnknownTool is returned by Invoke for names not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is an eino tool that can be invoked with JSON arguments.
type Tool = tool.InvokableTool

// Registry manages tools by name
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewSandboxRegistry registers every sandbox tool backed by the given
// executors.
func NewSandboxRegistry(files *executor.Files, commands *executor.Commands) (*Registry, error) {
	reg := NewRegistry()
	builders := []func() (Tool, error){
		func() (Tool, error) { return NewReadFileTool(files) },
		func() (Tool, error) { return NewWriteFileTool(files) },
		func() (Tool, error) { return NewListDirTool(files) },
		func() (Tool, error) { return NewFileExistsTool(files) },
		func() (Tool, error) { return NewFileInfoTool(files) },
		func() (Tool, error) { return NewEditFileTool(files) },
		func() (Tool, error) { return NewAppendFileTool(files) },
		func() (Tool, error) { return NewExecTool(commands) },
	}
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds a tool to registry
func (r *Registry) Register(t Tool) error {
	info, err := t.Info(context.Background())
	if err != nil {
		return err
	}
	if info == nil || info.Name == "" {
		return fmt.Errorf("tool info missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool already registered: %s", info.Name)
	}
	r.tools[info.Name] = t
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Infos returns tool descriptions sorted by name.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Invoke runs the named tool with JSON arguments.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.InvokableRun(ctx, argsJSON)
}
