// Package toolset implements the Tool Registry & Signatures subsystem
// (spec.md §4.7): a one-time, startup-complete registry of named,
// JSON-schema-described tools the Script Runtime bridges model-emitted
// calls into.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Input carries a tool call's JSON params object (spec.md §3 ToolInput).
type Input = json.RawMessage

// Output is the spec.md §3 ToolOutput record.
type Output struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ExecuteFunc performs a tool's side effect, returning an Output.
type ExecuteFunc func(ctx context.Context, input Input) (Output, error)

// Tool is the spec.md §3 record: (name, description, json_schema, execute).
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	// Positional lists the parameter names in call order, letting the
	// runtime's argument adapter map a positional call (spec.md §4.8) onto
	// this tool's named-parameter object shape. Nil for tools with no
	// documented positional convention.
	Positional []string
	Execute    ExecuteFunc
}

// ForInput builds a jsonschema.Schema for T via reflection, the same
// mechanism the teacher's MCP server relies on through mcp.AddTool's
// internal use of google/jsonschema-go.
func ForInput[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// Registry holds all tools available to a Runtime for one process lifetime.
// Registration must complete before any Runtime executes (spec.md §4.7);
// Freeze enforces that boundary.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	frozen bool
}

// NewRegistry constructs an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds tool to the registry. Returns an error if the registry is
// frozen or a tool with the same name already exists — names are unique
// (spec.md §4.7).
func (r *Registry) Register(tool *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("toolset: registry frozen, cannot register %q after startup", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("toolset: tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Freeze marks registration complete. Subsequent Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns the named tool and whether it exists.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// GenerateSignatures renders a human-readable summary of every registered
// tool for the model prompt (spec.md §4.7), sorted by name for a stable
// prompt across runs.
func (r *Registry) GenerateSignatures() string {
	tools := r.List()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	var sb strings.Builder
	for _, t := range tools {
		sb.WriteString(t.Name)
		sb.WriteString("(")
		sb.WriteString(strings.Join(t.Positional, ", "))
		sb.WriteString(") — ")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

// AdaptPositional maps a positional-call argument list onto tool's named
// parameters, implementing the runtime's argument adapter convention
// (spec.md §4.8: "writeFile(path, content) → {path, content}"). Returns an
// error if more positional args are supplied than the tool declares names
// for, or if the tool has no positional convention at all.
func AdaptPositional(tool *Tool, args []any) (Input, error) {
	if tool.Positional == nil {
		return nil, fmt.Errorf("toolset: %q has no positional calling convention", tool.Name)
	}
	if len(args) > len(tool.Positional) {
		return nil, fmt.Errorf("toolset: %q called with %d args, accepts at most %d", tool.Name, len(args), len(tool.Positional))
	}
	obj := make(map[string]any, len(args))
	for i, a := range args {
		obj[tool.Positional[i]] = a
	}
	return json.Marshal(obj)
}
