// Package retrieval wires the Hybrid Retrieval Index's five leaf components
// (spec.md §4.1-§4.5) into one Retriever the Context Fetcher (§4.10) can
// call, and drives the one-shot indexing pass cmd/agentcore's index
// subcommand runs before a session starts.
package retrieval

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/agentcore/internal/retrieval/bm25"
	"github.com/Aman-CERP/agentcore/internal/retrieval/chunk"
	"github.com/Aman-CERP/agentcore/internal/retrieval/embed"
	"github.com/Aman-CERP/agentcore/internal/retrieval/fusion"
	"github.com/Aman-CERP/agentcore/internal/retrieval/vectorstore"
	"github.com/Aman-CERP/agentcore/internal/scanner"
)

// Index owns one project's chunk/vector/BM25 state and answers fused
// searches, satisfying internal/retrieval/context.Retriever.
type Index struct {
	root     string
	chunker  chunk.Chunker
	embedder embed.Client
	vectors  *vectorstore.Store
	lexical  *bm25.Index
	fuser    *fusion.Fuser
	chunks   map[string]fusion.ChunkInfo

	filesIndexed int
}

// Stats is a point-in-time summary of what Build has indexed so far,
// reported by the status subcommand.
type Stats struct {
	Root          string
	FilesIndexed  int
	ChunksIndexed int
}

// Stats reports how many files and chunks the last Build indexed.
func (idx *Index) Stats() Stats {
	return Stats{Root: idx.root, FilesIndexed: idx.filesIndexed, ChunksIndexed: len(idx.chunks)}
}

// New constructs an empty Index over root, ready for Build. embedder's
// Dimensions() fixes the vector store's dimensionality.
func New(root string, chunker chunk.Chunker, embedder embed.Client) *Index {
	return &Index{
		root:     root,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectorstore.New(embedder.Dimensions()),
		lexical:  bm25.New(bm25.DefaultConfig()),
		fuser:    fusion.New(),
		chunks:   make(map[string]fusion.ChunkInfo),
	}
}

// Build scans root (spec.md §4.1 "Chunker" input), chunks every discovered
// file, embeds and indexes each chunk into the Vector Store and BM25
// Index, and finalizes BM25 for querying. It is not safe to call Build
// concurrently with Search.
func (idx *Index) Build(ctx context.Context) error {
	sc, err := scanner.New()
	if err != nil {
		return err
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          idx.root,
		RespectGitignore: true,
	})
	if err != nil {
		return err
	}

	for res := range results {
		if res.Error != nil || res.File == nil {
			continue
		}
		if err := idx.indexFile(ctx, res.File.Path, res.File.AbsPath); err != nil {
			return err
		}
		idx.filesIndexed++
	}

	idx.lexical.Finalize()
	return nil
}

func (idx *Index) indexFile(ctx context.Context, relPath, absPath string) error {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil // unreadable files are skipped, not fatal to the whole build
	}

	chunks, err := idx.chunker.Chunk(ctx, filepath.ToSlash(relPath), content)
	if err != nil {
		return nil
	}

	for _, c := range chunks {
		vec, err := idx.embedder.Embed(ctx, c.Content)
		if err != nil {
			continue
		}
		if err := idx.vectors.Add(c.Key(), vec, c.Preview); err != nil {
			continue
		}
		idx.lexical.AddDocument(c.Key(), c.Content)
		idx.chunks[c.Key()] = fusion.ChunkInfo{Path: c.Path, Preview: c.Preview}
	}
	return nil
}

// Search implements internal/retrieval/context.Retriever: embed the query,
// fetch the top 2·topK from each side (spec.md §4.5 step 1), and fuse.
func (idx *Index) Search(query string, topK int) ([]fusion.Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	ctx := context.Background()
	fanout := topK * 2

	var bm25Hits []bm25.Result
	if idx.lexical.Len() > 0 {
		hits, err := idx.lexical.Search(query, fanout)
		if err != nil {
			return nil, err
		}
		bm25Hits = hits
	}

	var vecHits []vectorstore.Result
	if !idx.vectors.IsEmpty() {
		qvec, err := idx.embedder.Embed(ctx, query)
		if err == nil {
			if hits, err := idx.vectors.Search(qvec, fanout); err == nil {
				vecHits = hits
			}
		}
	}

	return idx.fuser.Fuse(query, bm25Hits, vecHits, idx.chunks, topK), nil
}
