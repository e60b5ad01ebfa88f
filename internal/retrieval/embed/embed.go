// Package embed defines the Embedding Client contract used by the hybrid
// retrieval index and ships a dependency-free deterministic default.
package embed

import (
	"context"
	"os"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	teacherembed "github.com/Aman-CERP/agentcore/internal/embed"
)

// Client produces fixed-dimension vectors for text. It is stateless and
// cheap to clone; concurrent callers are allowed.
type Client interface {
	// Embed returns a vector of fixed length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EnsureAvailable probes the backend. A non-nil error is always a
	// *coreerr.CoreError tagged ModelUnavailable, Transient, or Malformed.
	EnsureAvailable(ctx context.Context) error

	// Dimensions returns D, fixed for a cache generation.
	Dimensions() int
}

// StaticClient is a deterministic, hash-based embedder requiring no network
// access or model download. It wraps the teacher's StaticEmbedder, which
// already implements the tokenize/n-gram/hash pipeline this contract needs.
type StaticClient struct {
	inner *teacherembed.StaticEmbedder
}

// NewStaticClient constructs the default Embedding Client.
func NewStaticClient() *StaticClient {
	return &StaticClient{inner: teacherembed.NewStaticEmbedder()}
}

// Embed implements Client.
func (c *StaticClient) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, coreerr.New(coreerr.Retrieval, coreerr.KindModelUnavailable, err.Error(), err)
	}
	return v, nil
}

// EnsureAvailable implements Client; the static embedder is always available
// unless Close has been called.
func (c *StaticClient) EnsureAvailable(ctx context.Context) error {
	if c.inner.Available(ctx) {
		return nil
	}
	return coreerr.ModelUnavailable("static embedder closed", nil)
}

// Dimensions implements Client.
func (c *StaticClient) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases resources.
func (c *StaticClient) Close() error {
	return c.inner.Close()
}

// networkClient adapts the teacher's richer Embedder contract (batch
// embedding, thermal-aware timeouts, an LRU query cache already layered
// on by NewEmbedder) down to this package's Client contract.
type networkClient struct {
	inner teacherembed.Embedder
}

// NewConfiguredClient builds a Client from the AGENTCORE_EMBEDDER
// environment variable ("ollama", "mlx", or "static" — see
// teacherembed.NewEmbedder and teacherembed.ParseProvider), the same
// variable the teacher's embedder factory itself reads. It returns
// (nil, nil) when the variable is unset, so callers fall back to the
// network-free StaticClient without ever touching a local daemon — the
// default stays zero-config; an Ollama or MLX backend is opt-in.
func NewConfiguredClient(ctx context.Context) (Client, error) {
	if os.Getenv("AGENTCORE_EMBEDDER") == "" {
		return nil, nil
	}
	inner, err := teacherembed.NewEmbedder(ctx, teacherembed.ParseProvider(""), "")
	if err != nil {
		return nil, coreerr.New(coreerr.Retrieval, coreerr.KindModelUnavailable, err.Error(), err)
	}
	return &networkClient{inner: inner}, nil
}

// Embed implements Client.
func (c *networkClient) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, coreerr.New(coreerr.Retrieval, coreerr.KindModelUnavailable, err.Error(), err)
	}
	return v, nil
}

// EnsureAvailable implements Client.
func (c *networkClient) EnsureAvailable(ctx context.Context) error {
	if c.inner.Available(ctx) {
		return nil
	}
	return coreerr.ModelUnavailable(c.inner.ModelName()+" embedder unavailable", nil)
}

// Dimensions implements Client.
func (c *networkClient) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases resources.
func (c *networkClient) Close() error {
	return c.inner.Close()
}
