package mcpbridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/agentcore/internal/toolset"
)

func echoTool() *toolset.Tool {
	return &toolset.Tool{
		Name:        "echo",
		Description: "echoes its message argument back",
		Positional:  []string{"message"},
		Execute: func(ctx context.Context, input toolset.Input) (toolset.Output, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return toolset.Output{}, err
			}
			if args.Message == "" {
				return toolset.Output{Success: false, Message: "message is required"}, nil
			}
			data, _ := json.Marshal(map[string]string{"echoed": args.Message})
			return toolset.Output{Success: true, Message: "ok", Data: data}, nil
		},
	}
}

func TestRegister_RejectsUnfrozenRegistry(t *testing.T) {
	reg := toolset.NewRegistry()
	require.NoError(t, reg.Register(echoTool()))

	b := New(reg)
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)

	err := b.Register(server)
	assert.Error(t, err)
}

func TestRegister_SucceedsForFrozenRegistry(t *testing.T) {
	reg := toolset.NewRegistry()
	require.NoError(t, reg.Register(echoTool()))
	reg.Freeze()

	b := New(reg)
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)

	assert.NoError(t, b.Register(server))
}

func TestHandlerFor_SuccessReturnsDataAndNoError(t *testing.T) {
	b := New(toolset.NewRegistry())
	handler := b.handlerFor(echoTool())

	result, out, err := handler(context.Background(), nil, map[string]any{"message": "hi"})

	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, true, out["success"])
	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", data["echoed"])
}

func TestHandlerFor_ToolFailureReturnsIsErrorResult(t *testing.T) {
	b := New(toolset.NewRegistry())
	handler := b.handlerFor(echoTool())

	result, out, err := handler(context.Background(), nil, map[string]any{})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, false, out["success"])
}

func TestHandlerFor_ExecuteErrorIsPropagated(t *testing.T) {
	b := New(toolset.NewRegistry())
	failing := &toolset.Tool{
		Name: "fails",
		Execute: func(ctx context.Context, input toolset.Input) (toolset.Output, error) {
			return toolset.Output{}, assertErr
		},
	}
	handler := b.handlerFor(failing)

	_, _, err := handler(context.Background(), nil, map[string]any{})
	assert.Error(t, err)
}

var assertErr = errAlways{}

type errAlways struct{}

func (errAlways) Error() string { return "always fails" }
