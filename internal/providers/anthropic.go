// Package providers ships the routing.Provider implementations the CLI
// wires into the Router (spec.md §4.9: "the core only ever calls through
// this interface"; provider HTTP clients are otherwise an external
// collaborator). AnthropicProvider is the one concrete backend: a single
// system+user turn per Generate call, since the script runtime — not the
// provider — is what drives tool calls (spec.md §4.8).
package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Aman-CERP/agentcore/internal/routing"
)

const defaultMaxTokens int64 = 4096

// AnthropicProvider drives one tier of the Router against the Anthropic
// Messages API.
type AnthropicProvider struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider constructs a provider for model, reading apiKey from
// the caller (cmd/agentcore resolves it from config/env before calling in —
// spec.md §2's ambient config, not this package, owns secret resolution).
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return newAnthropicProvider(apiKey, model, "", nil)
}

// NewAnthropicProviderWithBaseURL constructs a provider pointed at a
// non-default endpoint and HTTP client, for tests and for self-hosted
// Anthropic-compatible gateways.
func NewAnthropicProviderWithBaseURL(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicProvider {
	return newAnthropicProvider(apiKey, model, baseURL, httpClient)
}

func newAnthropicProvider(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicProvider{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

// Generate implements routing.Provider: one system(context)+user(query)
// turn, no tools — script blocks in the response text are extracted and
// run by internal/runtime, not negotiated via the API's tool-use protocol.
func (p *AnthropicProvider) Generate(ctx context.Context, query, contextText string) (routing.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
		},
	}
	if strings.TrimSpace(contextText) != "" {
		params.System = []anthropic.TextBlockParam{{Text: contextText}}
	}

	start := time.Now()
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return routing.Response{}, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	return routing.Response{
		Text:      sb.String(),
		Tokens:    int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// IsAvailable implements routing.Provider. The core treats an API key
// resolved at construction time as sufficient to try; an actual outage
// surfaces as a Generate error, which the Router's retry-next-cheapest
// logic already handles (spec.md §7's ProviderUnavailable).
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	return true
}

// EstimateCost implements routing.Provider with a length-proportional
// placeholder; spec.md §1 lists cost accounting as a non-goal, so this
// exists only to satisfy the Router's cheapest-fallback ordering, not to
// be billed against.
func (p *AnthropicProvider) EstimateCost(context string) float64 {
	return float64(len(context)) / 4000.0
}
