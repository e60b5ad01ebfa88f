package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProviderGenerateReturnsResponseText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		resp := sdk.Message{
			ID:         "msg_1",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "```json\n{\"action\":\"complete\",\"result\":\"done\"}\n```"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	p := NewAnthropicProviderWithBaseURL("test-key", "claude-3-7-sonnet-latest", srv.URL, srv.Client())
	resp, err := p.Generate(context.Background(), "assess this task", "some context")

	require.NoError(t, err)
	assert.Contains(t, resp.Text, "\"action\":\"complete\"")
	assert.Equal(t, "/v1/messages", gotPath)
}

func TestAnthropicProviderIsAvailableAndEstimateCost(t *testing.T) {
	p := NewAnthropicProvider("test-key", "")
	assert.True(t, p.IsAvailable(context.Background()))
	assert.Greater(t, p.EstimateCost("some context text"), 0.0)
	assert.Equal(t, 0.0, p.EstimateCost(""))
}
