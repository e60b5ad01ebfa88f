package cmd

import (
	"context"

	"github.com/Aman-CERP/agentcore/internal/retrieval"
	"github.com/Aman-CERP/agentcore/internal/retrieval/chunk"
	"github.com/Aman-CERP/agentcore/internal/retrieval/embed"
)

// chunkerFor and embedderFor are the default Chunker/Embedding Client pair
// (spec.md §4.1, §4.2) every agentcore subcommand builds its retrieval
// index from: tree-sitter boundaries over the static, network-free
// embedder, so a first run never blocks on a model download. Setting
// AGENTCORE_EMBEDDER opts into the Ollama or MLX embedder instead.
func chunkerFor() chunk.Chunker {
	return chunk.NewTreeSitterChunker()
}

func embedderFor() embed.Client {
	if c, err := embed.NewConfiguredClient(context.Background()); err == nil && c != nil {
		return c
	}
	return embed.NewStaticClient()
}

// newIndexForRoot builds an empty retrieval.Index over root using the
// default chunker/embedder pair, shared by the index and status subcommands.
func newIndexForRoot(root string) *retrieval.Index {
	return retrieval.New(root, chunkerFor(), embedderFor())
}
