package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/genai"

	"adorable/internal/logging"
)

// Registry manages the collection of available tools.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewGenerationRegistry returns the tools offered when creating a project.
func NewGenerationRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewEmitFilesTool())
	r.MustRegister(NewSayTool())
	return r
}

// NewEditRegistry returns the tools offered when editing or fixing a project.
func NewEditRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewApplyChangesTool())
	r.MustRegister(NewSayTool())
	return r
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the names of all registered tools in sorted order.
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

// Declarations returns all tool declarations sorted by name.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	declarations := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		declarations = append(declarations, r.tools[name].Declaration())
	}
	return declarations
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool to the registry and logs a warning on error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		logging.Warn("failed to register tool", "tool", tool.Name(), "error", err)
	}
}

// GeminiTools returns the tools in Gemini format.
func (r *Registry) GeminiTools() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: r.Declarations(),
		},
	}
}

// Run validates and executes one call. Failures are reported inside the
// result so the model can see them; only context errors are returned.
func (r *Registry) Run(ctx context.Context, id, name string, args map[string]any) (Result, error) {
	res := Result{ID: id, Name: name}

	tool, ok := r.Get(name)
	if !ok {
		res.ToolResult = NewErrorResult(fmt.Sprintf("unknown tool %q", name))
		return res, nil
	}
	if err := tool.Validate(args); err != nil {
		res.ToolResult = NewErrorResult(fmt.Sprintf("invalid arguments: %s", err))
		return res, nil
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.ToolResult = NewErrorResult(err.Error())
		return res, nil
	}
	res.ToolResult = out
	return res, nil
}
