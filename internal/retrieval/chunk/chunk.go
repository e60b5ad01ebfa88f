// Package chunk splits source files into line-ranged Chunks, the unit of
// indexing and retrieval for the hybrid index.
package chunk

import (
	"context"
	"strings"

	teacherchunk "github.com/Aman-CERP/agentcore/internal/chunk"
)

// Chunk is a contiguous, 1-based inclusive line range of a single source
// file. Identity key is "{Path}:{Start}-{End}".
type Chunk struct {
	Path    string
	Start   int
	End     int
	Content string
	Preview string
}

// Key returns the chunk's identity key.
func (c Chunk) Key() string {
	return c.Path + ":" + itoa(c.Start) + "-" + itoa(c.End)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

const (
	// slidingWindowMin is the minimum window size in lines for the
	// fallback chunker (spec: "sliding windows of ~40-80 lines").
	slidingWindowMin = 40
	slidingWindowMax = 80
	slidingOverlap   = 5
	previewMaxLen    = 200
)

// Chunker produces an ordered list of Chunks covering a file's content.
type Chunker interface {
	Chunk(ctx context.Context, relPath string, content []byte) ([]Chunk, error)
}

// TreeSitterChunker splits by language-aware boundaries (top-level items
// kept intact where feasible) when the file extension is recognized,
// falling back to fixed-size sliding windows otherwise. Code files are
// split symbol-by-symbol (function/method/class/type boundaries, with
// large symbols further split on overlap) by the teacher's CodeChunker;
// Markdown/MDX files are split header-by-header by the teacher's
// MarkdownChunker.
type TreeSitterChunker struct {
	code     *teacherchunk.CodeChunker
	markdown *teacherchunk.MarkdownChunker
	registry *teacherchunk.LanguageRegistry
}

// NewTreeSitterChunker constructs a chunker backed by go-tree-sitter via the
// teacher's language registry and symbol extractor.
func NewTreeSitterChunker() *TreeSitterChunker {
	return &TreeSitterChunker{
		code:     teacherchunk.NewCodeChunker(),
		markdown: teacherchunk.NewMarkdownChunker(),
		registry: teacherchunk.DefaultRegistry(),
	}
}

// Close releases the underlying tree-sitter parser.
func (c *TreeSitterChunker) Close() {
	if c.code != nil {
		c.code.Close()
	}
}

func languageForExt(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".ts"):
		return "typescript"
	case strings.HasSuffix(path, ".tsx"):
		return "tsx"
	case strings.HasSuffix(path, ".js"):
		return "javascript"
	case strings.HasSuffix(path, ".jsx"):
		return "jsx"
	case strings.HasSuffix(path, ".py"):
		return "python"
	default:
		return ""
	}
}

func isMarkdown(path string) bool {
	return strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".markdown") || strings.HasSuffix(path, ".mdx")
}

// Chunk implements Chunker.
func (c *TreeSitterChunker) Chunk(ctx context.Context, relPath string, content []byte) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	if isMarkdown(relPath) {
		chunks, err := c.markdown.Chunk(ctx, &teacherchunk.FileInput{Path: relPath, Content: content})
		if err != nil || len(chunks) == 0 {
			return slidingWindowChunks(relPath, content), nil
		}
		return fromTeacherChunks(chunks), nil
	}

	lang := languageForExt(relPath)
	if lang == "" {
		return slidingWindowChunks(relPath, content), nil
	}
	if _, ok := c.registry.GetByName(lang); !ok {
		return slidingWindowChunks(relPath, content), nil
	}

	chunks, err := c.code.Chunk(ctx, &teacherchunk.FileInput{Path: relPath, Content: content, Language: lang})
	if err != nil || len(chunks) == 0 {
		return slidingWindowChunks(relPath, content), nil
	}
	return fromTeacherChunks(chunks), nil
}

// fromTeacherChunks adapts the teacher's symbol-aware *teacherchunk.Chunk
// (content-addressable ID, Symbols, file Context) down to this package's
// plain line-range Chunk, which the fusion/vectorstore/bm25 layers index
// on Path/Start/End alone.
func fromTeacherChunks(in []*teacherchunk.Chunk) []Chunk {
	out := make([]Chunk, 0, len(in))
	for _, tc := range in {
		if strings.TrimSpace(tc.Content) == "" {
			continue
		}
		out = append(out, newChunk(tc.FilePath, tc.StartLine, tc.EndLine, tc.Content))
	}
	return out
}

// slidingWindowChunks is the fallback for unsupported languages or parse
// failures: fixed windows of slidingWindowMax lines (the last window may be
// shorter) with slidingOverlap lines of overlap.
func slidingWindowChunks(relPath string, content []byte) []Chunk {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	window := slidingWindowMax
	var chunks []Chunk
	for i := 0; i < len(lines); {
		end := i + window
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[i:end], "\n")
		chunks = append(chunks, newChunk(relPath, i+1, end, body))
		if end >= len(lines) {
			break
		}
		i = end - slidingOverlap
		if i < 0 {
			i = end
		}
	}
	return chunks
}

func newChunk(path string, start, end int, content string) Chunk {
	return Chunk{
		Path:    path,
		Start:   start,
		End:     end,
		Content: content,
		Preview: preview(content),
	}
}

// preview returns a head-of-content extract of at most previewMaxLen
// characters, trimmed at a line boundary.
func preview(content string) string {
	if len(content) <= previewMaxLen {
		return content
	}
	cut := content[:previewMaxLen]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
