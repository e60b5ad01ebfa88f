package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/agentcore/internal/lifecycle"
	"github.com/Aman-CERP/agentcore/internal/routing"
)

// DefaultOllamaChatModel is the model --local runs against when none is
// configured. It is not pulled automatically; if the daemon does not have
// it, Generate fails with the daemon's error status.
const DefaultOllamaChatModel = "qwen2.5-coder:7b"

// OllamaProvider drives --local's routing tier against a local Ollama
// daemon's /api/generate endpoint. It never calls out to a remote API key,
// satisfying spec.md §4.9's "locally-available providers only" restriction.
type OllamaProvider struct {
	manager *lifecycle.OllamaManager
	client  *http.Client
	host    string
	model   string
}

// NewOllamaProvider constructs a provider for model against host (empty
// defaults to lifecycle.DefaultHost). It does not start Ollama or pull
// model, and cmd/agentcore registers it without calling EnsureReady, so the
// daemon and the model must already be present.
func NewOllamaProvider(host, model string) *OllamaProvider {
	if model == "" {
		model = DefaultOllamaChatModel
	}
	manager := lifecycle.NewOllamaManagerWithHost(host)
	return &OllamaProvider{
		manager: manager,
		client:  &http.Client{Timeout: 2 * time.Minute},
		host:    manager.Host(),
		model:   model,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response      string `json:"response"`
	EvalCount     int    `json:"eval_count"`
	PromptEvalCnt int    `json:"prompt_eval_count"`
}

// Generate implements routing.Provider against Ollama's non-streaming
// /api/generate, mirroring AnthropicProvider's single system+user turn: the
// script runtime, not the provider, drives any tool calls a response names.
func (p *OllamaProvider) Generate(ctx context.Context, query, contextText string) (routing.Response, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: query,
		System: contextText,
		Stream: false,
	})
	if err != nil {
		return routing.Response{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return routing.Response{}, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return routing.Response{}, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return routing.Response{}, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return routing.Response{}, fmt.Errorf("decode ollama response: %w", err)
	}

	return routing.Response{
		Text:      out.Response,
		Tokens:    out.EvalCount + out.PromptEvalCnt,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// IsAvailable implements routing.Provider by checking the daemon is
// actually reachable — unlike AnthropicProvider, a local daemon can be
// stopped out-of-band at any time, so this is checked on every Route call
// rather than assumed true from construction onward.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	running, err := p.manager.IsRunning()
	return err == nil && running
}

// EstimateCost implements routing.Provider. A local model has no metered
// cost, so it always sorts first in the Router's cheapest-fallback order.
func (p *OllamaProvider) EstimateCost(context string) float64 {
	return 0
}

// ModelForDisplay returns the configured model id, used by the status
// subcommand to report what --local would actually run against.
func (p *OllamaProvider) ModelForDisplay() string {
	return strings.TrimSpace(p.model)
}
