// Package mcpbridge exposes a toolset.Registry over the Model Context
// Protocol, so an external MCP client (an editor, another agent) can call
// the same tools the Script Runtime calls internally. This is an optional
// adapter (spec.md §1 scopes the registry itself as core, the MCP surface
// as an external convenience) — nothing in the execution core depends on
// this package.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/agentcore/internal/toolset"
)

// Bridge registers a toolset.Registry's tools onto an *mcp.Server.
type Bridge struct {
	registry *toolset.Registry
}

// New constructs a Bridge over registry. registry must already be frozen
// (spec.md §4.7's registration-complete boundary); Register returns an
// error otherwise.
func New(registry *toolset.Registry) *Bridge {
	return &Bridge{registry: registry}
}

// Register adds every tool in the bridge's registry to server, one
// mcp.AddTool call per tool — the same registration shape the teacher's
// own MCP server uses for its four search tools, generalized from static
// per-tool Go input structs to the registry's dynamically-described
// tools via a generic map[string]any argument object.
func (b *Bridge) Register(server *mcp.Server) error {
	if !b.registry.Frozen() {
		return fmt.Errorf("mcpbridge: registry must be frozen before registration")
	}

	for _, t := range b.registry.List() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
		}, b.handlerFor(t))
	}
	return nil
}

// handlerFor adapts one toolset.Tool into an MCP tool handler: marshal the
// generic input object back to the tool's raw JSON wire shape (spec.md
// §6's "Tool JSON wire": input `{...params}`), execute it, and translate
// the {success, message, data} Output into the SDK's result shape.
func (b *Bridge) handlerFor(t *toolset.Tool) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, map[string]any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, nil, fmt.Errorf("mcpbridge: %s: encoding arguments: %w", t.Name, err)
		}

		out, err := t.Execute(ctx, toolset.Input(raw))
		if err != nil {
			return nil, nil, fmt.Errorf("mcpbridge: %s: %w", t.Name, err)
		}

		result := map[string]any{
			"success": out.Success,
			"message": out.Message,
		}
		if len(out.Data) > 0 {
			var data any
			if err := json.Unmarshal(out.Data, &data); err == nil {
				result["data"] = data
			}
		}

		if !out.Success {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: out.Message}},
			}, result, nil
		}

		return nil, result, nil
	}
}
