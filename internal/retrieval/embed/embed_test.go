package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClientDeterministic(t *testing.T) {
	c := NewStaticClient()
	ctx := context.Background()

	v1, err := c.Embed(ctx, "func searchCode(query string)")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "func searchCode(query string)")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, c.Dimensions())
	assert.NoError(t, c.EnsureAvailable(ctx))
}

func TestStaticClientUnavailableAfterClose(t *testing.T) {
	c := NewStaticClient()
	require.NoError(t, c.Close())
	assert.Error(t, c.EnsureAvailable(context.Background()))
}

func TestNewConfiguredClientUnsetReturnsNil(t *testing.T) {
	t.Setenv("AGENTCORE_EMBEDDER", "")
	c, err := NewConfiguredClient(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewConfiguredClientStaticProvider(t *testing.T) {
	t.Setenv("AGENTCORE_EMBEDDER", "static")
	c, err := NewConfiguredClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	v, err := c.Embed(context.Background(), "func handle(req *Request) {}")
	require.NoError(t, err)
	assert.Len(t, v, c.Dimensions())
	assert.NoError(t, c.EnsureAvailable(context.Background()))
}
