package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	"github.com/Aman-CERP/agentcore/internal/toolset"
)

func frozenRegistry(t *testing.T, tools ...*toolset.Tool) *toolset.Registry {
	t.Helper()
	r := toolset.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool))
	}
	r.Freeze()
	return r
}

func TestExecuteSimpleArithmetic(t *testing.T) {
	rt := New(frozenRegistry(t))
	val, err := rt.Execute(context.Background(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), toInt(val))
}

func TestExecuteStatementSequenceEvaluatesLastExpression(t *testing.T) {
	rt := New(frozenRegistry(t))
	val, err := rt.Execute(context.Background(), "const x=42; x*2")
	require.NoError(t, err)
	assert.Equal(t, int64(84), toInt(val))
}

func TestExecuteTopLevelAwaitResolvesPromise(t *testing.T) {
	echo := &toolset.Tool{
		Name: "echo",
		Execute: func(ctx context.Context, in toolset.Input) (toolset.Output, error) {
			return toolset.Output{Success: true, Message: "ok", Data: in}, nil
		},
		Positional: []string{"value"},
	}
	rt := New(frozenRegistry(t, echo))

	script := `
		async function agent_code() {
			const p = new Promise((resolve) => resolve("done"));
			const result = await p;
			return result;
		}
	`
	val, err := rt.Execute(context.Background(), script)
	require.NoError(t, err)
	m, ok := val.(map[string]any)
	require.True(t, ok, "expected a {done, result} wrapper, got %#v", val)
	assert.Equal(t, true, m["done"])
	assert.Equal(t, "done", m["result"])
}

func TestExecuteReturnsStringAsDoneResult(t *testing.T) {
	rt := New(frozenRegistry(t))
	val, err := rt.Execute(context.Background(), `"hello"`)
	require.NoError(t, err)
	m, ok := val.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", m["result"])
}

func TestExecuteCallsRegisteredTool(t *testing.T) {
	writeFile := &toolset.Tool{
		Name:       "writeFile",
		Positional: []string{"path", "content"},
		Execute: func(ctx context.Context, in toolset.Input) (toolset.Output, error) {
			var args map[string]string
			require.NoError(t, json.Unmarshal(in, &args))
			assert.Equal(t, "a.go", args["path"])
			assert.Equal(t, "package a", args["content"])
			return toolset.Output{Success: true, Message: "wrote a.go"}, nil
		},
	}
	rt := New(frozenRegistry(t, writeFile))

	val, err := rt.Execute(context.Background(), `writeFile("a.go", "package a")`)
	require.NoError(t, err)
	assert.Equal(t, "wrote a.go", val)
}

func TestExecuteToolFailureSurfacesAsToolError(t *testing.T) {
	failing := &toolset.Tool{
		Name:       "readFile",
		Positional: []string{"path"},
		Execute: func(ctx context.Context, in toolset.Input) (toolset.Output, error) {
			return toolset.Output{Success: false, Message: "file not found: missing.go"}, nil
		},
	}
	rt := New(frozenRegistry(t, failing))

	_, err := rt.Execute(context.Background(), `readFile("missing.go")`)
	require.Error(t, err)
	assert.True(t, coreerr.Has(err, coreerr.Runtime, coreerr.KindToolError))
}

func TestExecuteParseFailureMapsToExecutionFailed(t *testing.T) {
	rt := New(frozenRegistry(t))
	_, err := rt.Execute(context.Background(), `this is not valid javascript {{{`)
	require.Error(t, err)
	assert.True(t, coreerr.Has(err, coreerr.Runtime, coreerr.KindExecutionFailed))
}

func TestExecuteTimesOutOnInfiniteLoop(t *testing.T) {
	rt := New(frozenRegistry(t)).WithLimits(Limits{
		Timeout:     50 * time.Millisecond,
		MemoryBytes: DefaultMemoryBytes,
		StackBytes:  DefaultStackBytes,
	})

	_, err := rt.Execute(context.Background(), `while (true) {}`)
	require.Error(t, err)
	assert.True(t, coreerr.Has(err, coreerr.Runtime, coreerr.KindTimeout))
}

func TestExecuteUnfrozenRegistryFails(t *testing.T) {
	rt := New(toolset.NewRegistry())
	_, err := rt.Execute(context.Background(), "1+1")
	require.Error(t, err)
}

func TestWrapCodeBareExpressionIsUnwrapped(t *testing.T) {
	assert.Equal(t, "1+1", WrapCode("1+1"))
}

func TestWrapCodeTopLevelReturnIsWrappedInIIFE(t *testing.T) {
	wrapped := WrapCode("return 42;")
	assert.Contains(t, wrapped, "(function() {")
	assert.Contains(t, wrapped, "return 42;")
}

func TestWrapCodeTopLevelAwaitIsWrappedInAsyncIIFE(t *testing.T) {
	wrapped := WrapCode("await readFile(\"a.go\");")
	assert.Contains(t, wrapped, "(async () => {")
}

// toInt normalizes goja's exported numeric value (int64 or float64
// depending on whether the result is a whole number) for assertions.
func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return -1
	}
}
