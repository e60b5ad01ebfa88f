// Package runtime implements the Sandboxed Script Runtime (spec.md §4.8):
// it strips TypeScript type annotations, wraps the model's script in the
// right evaluation shape, bridges tool calls synchronously into the Tool
// Registry, enforces timeout/memory/stack caps, and extracts a single
// terminal Value.
//
// Grounded on original_source's `crates/merlin-tooling/src/runtime.rs`
// (wrap_code, the argument-adapter tool bridge, extract_promise_if_needed)
// and `crates/merlin-tools/src/typescript_runtime.rs` (the exact resource
// constants and execute("1+1")=2 / execute("const x=42; x*2")=84 unit test
// expectations spec.md §8 repeats as invariants).
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	"github.com/Aman-CERP/agentcore/internal/toolset"
)

// Default resource caps (spec.md §4.8).
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMemoryBytes = 64 * 1024 * 1024
	DefaultStackBytes  = 1 * 1024 * 1024
)

// Limits are the hard per-execution resource caps.
type Limits struct {
	Timeout     time.Duration
	MemoryBytes uint64
	StackBytes  int64
}

// DefaultLimits returns the spec.md §4.8 default caps.
func DefaultLimits() Limits {
	return Limits{Timeout: DefaultTimeout, MemoryBytes: DefaultMemoryBytes, StackBytes: DefaultStackBytes}
}

// Runtime executes model-emitted scripts against a fixed Tool Registry.
type Runtime struct {
	tools  *toolset.Registry
	limits Limits
}

// New constructs a Runtime bound to tools, using the default resource caps.
// tools must be frozen (spec.md §4.7: registration complete before any
// Runtime executes).
func New(tools *toolset.Registry) *Runtime {
	return &Runtime{tools: tools, limits: DefaultLimits()}
}

// WithLimits overrides the default resource caps.
func (rt *Runtime) WithLimits(l Limits) *Runtime {
	rt.limits = l
	return rt
}

// stackDepthPerFrame approximates how many bytes of Go call-stack a single
// nested JS call consumes, used to convert the byte-denominated stack cap
// into goja's frame-count-denominated SetMaxCallStackSize.
const stackDepthPerFrame = 512

// Execute runs scriptText to completion and returns its terminal Value
// (spec.md §4.8). Value is one of nil, bool, float64, string, []any, or
// map[string]any — the JSON-shaped sum type the spec describes.
func (rt *Runtime) Execute(ctx context.Context, scriptText string) (any, error) {
	if !rt.tools.Frozen() {
		return nil, coreerr.ExecutionFailed("tool registry not frozen before execution")
	}

	wrapped := WrapCode(scriptText)

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	maxFrames := int(rt.limits.StackBytes / stackDepthPerFrame)
	if maxFrames < 16 {
		maxFrames = 16
	}
	vm.SetMaxCallStackSize(maxFrames)
	_ = vm.SetMemoryLimit(rt.limits.MemoryBytes)

	if err := registerToolFunctions(ctx, vm, rt.tools); err != nil {
		return nil, err
	}

	type runResult struct {
		val goja.Value
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: coreerr.ExecutionFailed(fmt.Sprintf("panic: %v", r))}
			}
		}()
		val, err := vm.RunString(wrapped)
		done <- runResult{val: val, err: err}
	}()

	select {
	case <-time.After(rt.limits.Timeout):
		vm.Interrupt("execution timed out")
		<-done // let the goroutine unwind before returning
		return nil, coreerr.Timeout()
	case r := <-done:
		if r.err != nil {
			return nil, classifyRunError(r.err)
		}
		return rt.resolveTerminalValue(vm, r.val)
	}
}

// classifyRunError maps a goja run error onto the spec.md §4.8 failure
// taxonomy.
func classifyRunError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "interrupted"):
		return coreerr.Timeout()
	case strings.Contains(msg, "memory limit") || strings.Contains(msg, "allocation failed"):
		return coreerr.MemoryExceeded()
	case strings.Contains(msg, "stack") && strings.Contains(msg, "overflow"):
		return coreerr.New(coreerr.Runtime, coreerr.KindMemoryExceeded, "stack overflow", err)
	default:
		if te, ok := err.(toolCallError); ok {
			return coreerr.ToolError(te.tool, te.message)
		}
		return coreerr.ExecutionFailed(msg)
	}
}

// resolveTerminalValue drains any pending Promise the top-level wrapper
// returned (the async IIFE / sync-function IIFE shapes wrap_code produces
// both yield one) and converts the settled value into Value, applying the
// "plain string → {done:true, result:<string>}" rule (spec.md §4.8).
func (rt *Runtime) resolveTerminalValue(vm *goja.Runtime, val goja.Value) (any, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	if p, ok := val.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateRejected:
			return nil, coreerr.ExecutionFailed(fmt.Sprintf("promise rejected: %v", p.Result().Export()))
		case goja.PromiseStatePending:
			return nil, coreerr.ExecutionFailed("promise never settled")
		default:
			val = p.Result()
		}
	}

	exported := val.Export()
	if s, ok := exported.(string); ok {
		return map[string]any{"done": true, "result": s}, nil
	}
	return exported, nil
}

// WrapCode prepares scriptText for evaluation, following wrap_code's shape:
// strip TypeScript types, then choose an evaluation strategy. Scripts
// already defining `agent_code`/`async function agent_code` are invoked
// directly; scripts containing top-level `await` are wrapped in an async
// IIFE; scripts with a top-level `return` are wrapped in a sync IIFE;
// everything else is evaluated as a bare expression/statement sequence
// (so `"const x = 42; x * 2"` evaluates to `84`).
func WrapCode(code string) string {
	stripped := strings.TrimSpace(StripTypeAnnotations(code))

	switch {
	case strings.Contains(stripped, "async function agent_code"):
		return stripped + "\n(async () => await agent_code())()"
	case strings.Contains(stripped, "function agent_code"):
		return stripped + "\nagent_code();"
	}

	hasAwait := strings.Contains(stripped, "await ")
	hasReturn := false
	for _, line := range strings.Split(stripped, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "return ") {
			hasReturn = true
			break
		}
	}

	switch {
	case hasAwait:
		return "(async () => { " + stripped + " })()"
	case hasReturn:
		return "(function() { " + stripped + " })()"
	default:
		return stripped
	}
}

// toolCallError carries a failed tool call's identity through a goja panic
// so classifyRunError can surface it as a ToolError.
type toolCallError struct {
	tool    string
	message string
}

func (e toolCallError) Error() string { return fmt.Sprintf("%s: %s", e.tool, e.message) }

// registerToolFunctions exposes every registered tool as a same-named
// global function performing a synchronous bridge into tool.Execute
// (spec.md §4.8). Unlike the original Rust runtime, which needs a nested
// Tokio runtime and thread::scope to call an async tool from a !Send JS
// context, Go's goroutines carry no such restriction: the bridge is a
// direct, blocking call.
func registerToolFunctions(ctx context.Context, vm *goja.Runtime, tools *toolset.Registry) error {
	for _, tool := range tools.List() {
		t := tool
		err := vm.Set(t.Name, func(call goja.FunctionCall) goja.Value {
			input, err := adaptArguments(vm, t, call.Arguments)
			if err != nil {
				panic(toolCallError{tool: t.Name, message: err.Error()})
			}

			output, err := t.Execute(ctx, input)
			if err != nil {
				panic(toolCallError{tool: t.Name, message: err.Error()})
			}
			if !output.Success {
				panic(toolCallError{tool: t.Name, message: output.Message})
			}

			if len(output.Data) == 0 {
				return vm.ToValue(output.Message)
			}
			var decoded any
			if err := json.Unmarshal(output.Data, &decoded); err != nil {
				panic(toolCallError{tool: t.Name, message: "decoding tool output: " + err.Error()})
			}
			return vm.ToValue(decoded)
		})
		if err != nil {
			return coreerr.ExecutionFailed(fmt.Sprintf("registering tool %q: %v", t.Name, err))
		}
	}
	return nil
}

// adaptArguments converts a JS call's arguments into a tool's JSON Input,
// handling both the single object-shaped argument and the positional-list
// conventions (spec.md §4.8).
func adaptArguments(vm *goja.Runtime, t *toolset.Tool, args []goja.Value) (toolset.Input, error) {
	switch len(args) {
	case 0:
		return json.Marshal(map[string]any{})
	case 1:
		exported := args[0].Export()
		if obj, ok := exported.(map[string]any); ok {
			return json.Marshal(obj)
		}
		if t.Positional == nil {
			return nil, fmt.Errorf("%s: expected an object argument", t.Name)
		}
		return toolset.AdaptPositional(t, []any{exported})
	default:
		values := make([]any, len(args))
		for i, a := range args {
			values[i] = a.Export()
		}
		return toolset.AdaptPositional(t, values)
	}
}
