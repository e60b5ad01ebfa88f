package toolset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
)

// FileReader is the read side of the Workspace API (spec.md §4.12
// WorkspaceState.read) that the readFile tool bridges into.
type FileReader interface {
	Read(ctx context.Context, path string) (content string, ok bool, err error)
}

// FileWriter is the write side of the Workspace API (spec.md §4.12
// create_file/modify_file) that the writeFile tool bridges into.
type FileWriter interface {
	WriteFile(ctx context.Context, path, content string) error
}

// ContextRequester services a GatherContext self-ask (spec.md §4.11
// `GatherContext{needs}`) by running a fresh retrieval pass.
type ContextRequester interface {
	RequestContext(ctx context.Context, pattern, reason string, maxFiles int) ([]string, error)
}

// readFileInput is readFile's JSON schema source struct.
type readFileInput struct {
	Path string `json:"path" jsonschema:"relative path of the file to read"`
}

// NewReadFileTool builds the readFile tool, positional convention
// readFile(path) → {path} (spec.md §4.8).
func NewReadFileTool(reader FileReader) *Tool {
	schema, err := ForInput[readFileInput]()
	if err != nil {
		schema = nil
	}
	return &Tool{
		Name:        "readFile",
		Description: "Read the content of a file in the workspace.",
		Schema:      schema,
		Positional:  []string{"path"},
		Execute: func(ctx context.Context, raw Input) (Output, error) {
			var in readFileInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			content, ok, err := reader.Read(ctx, in.Path)
			if err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			if !ok {
				return Output{Success: false, Message: fmt.Sprintf("file not found: %s", in.Path)}, nil
			}
			data, _ := json.Marshal(content)
			return Output{Success: true, Message: "read " + in.Path, Data: data}, nil
		},
	}
}

// writeFileInput is writeFile's JSON schema source struct.
type writeFileInput struct {
	Path    string `json:"path" jsonschema:"relative path of the file to write"`
	Content string `json:"content" jsonschema:"full new content of the file"`
}

// NewWriteFileTool builds the writeFile tool, positional convention
// writeFile(path, content) → {path, content} (spec.md §4.8 example).
func NewWriteFileTool(writer FileWriter) *Tool {
	schema, err := ForInput[writeFileInput]()
	if err != nil {
		schema = nil
	}
	return &Tool{
		Name:        "writeFile",
		Description: "Create or overwrite a file in the workspace with new content.",
		Schema:      schema,
		Positional:  []string{"path", "content"},
		Execute: func(ctx context.Context, raw Input) (Output, error) {
			var in writeFileInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			if err := writer.WriteFile(ctx, in.Path, in.Content); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			return Output{Success: true, Message: "wrote " + in.Path}, nil
		},
	}
}

// requestContextInput is requestContext's JSON schema source struct.
type requestContextInput struct {
	Pattern  string `json:"pattern" jsonschema:"search pattern or query describing the needed context"`
	Reason   string `json:"reason" jsonschema:"why this context is needed"`
	MaxFiles int    `json:"max_files,omitempty" jsonschema:"maximum number of files to return"`
}

// NewRequestContextTool builds the requestContext tool, positional
// convention requestContext(pattern, reason, max_files?) → {pattern,
// reason, max_files?} (spec.md §4.8 example).
func NewRequestContextTool(requester ContextRequester) *Tool {
	schema, err := ForInput[requestContextInput]()
	if err != nil {
		schema = nil
	}
	return &Tool{
		Name:        "requestContext",
		Description: "Ask the retrieval layer for more context matching a pattern.",
		Schema:      schema,
		Positional:  []string{"pattern", "reason", "max_files"},
		Execute: func(ctx context.Context, raw Input) (Output, error) {
			var in requestContextInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			maxFiles := in.MaxFiles
			if maxFiles <= 0 {
				maxFiles = 10
			}
			files, err := requester.RequestContext(ctx, in.Pattern, in.Reason, maxFiles)
			if err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			data, _ := json.Marshal(files)
			return Output{Success: true, Message: fmt.Sprintf("found %d files", len(files)), Data: data}, nil
		},
	}
}

// searchCodeInput is searchCode's JSON schema source struct.
type searchCodeInput struct {
	Query string `json:"query" jsonschema:"the keyword/grep-style query to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// searchCodeHit is a single match returned by the searchCode tool.
type searchCodeHit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// BleveGrep is a lexical, grep-style auxiliary search tool distinct from
// the primary hybrid retrieval index: it indexes raw file content by path
// and serves literal/keyword queries the hybrid index's chunk-level BM25
// does not cover well (whole-file matches, exact identifiers). Grounded on
// the teacher's BleveBM25Index (internal/store/bm25.go) — same
// NewMemOnly/MatchQuery/SearchRequest shape, reused here for a standalone
// file-level index rather than the chunk-level hybrid index.
type BleveGrep struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveGrep constructs an empty in-memory bleve index.
func NewBleveGrep() (*BleveGrep, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("toolset: create bleve index: %w", err)
	}
	return &BleveGrep{index: idx}, nil
}

type bleveDoc struct {
	Content string `json:"content"`
}

// IndexFiles (re)indexes the given path→content set as a single batch.
func (g *BleveGrep) IndexFiles(files map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	batch := g.index.NewBatch()
	for path, content := range files {
		if err := batch.Index(path, bleveDoc{Content: content}); err != nil {
			return fmt.Errorf("toolset: index %s: %w", path, err)
		}
	}
	return g.index.Batch(batch)
}

// Search runs a keyword match query over indexed file content.
func (g *BleveGrep) Search(ctx context.Context, query string, limit int) ([]searchCodeHit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := g.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("toolset: bleve search: %w", err)
	}

	hits := make([]searchCodeHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, searchCodeHit{Path: h.ID, Score: h.Score})
	}
	return hits, nil
}

// runCommandInput is runCommand's JSON schema source struct.
type runCommandInput struct {
	Command    string   `json:"command" jsonschema:"the executable to run"`
	Args       []string `json:"args,omitempty" jsonschema:"arguments passed to the command"`
	TimeoutSec int      `json:"timeout_sec,omitempty" jsonschema:"wall-clock timeout in seconds, default 30"`
}

// runCommandOutput is runCommand's Data payload shape.
type runCommandOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// NewRunCommandTool builds the runCommand tool: bounded subprocess
// execution in dir, used both by scripts directly and by the executor's
// verification step (spec.md §4.11's Subtask.verification) via the same
// underlying helper.
func NewRunCommandTool(dir string) *Tool {
	schema, err := ForInput[runCommandInput]()
	if err != nil {
		schema = nil
	}
	return &Tool{
		Name:        "runCommand",
		Description: "Run a shell command in the workspace root and capture its exit code, stdout, and stderr.",
		Schema:      schema,
		Positional:  []string{"command", "args", "timeout_sec"},
		Execute: func(ctx context.Context, raw Input) (Output, error) {
			var in runCommandInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			timeout := time.Duration(in.TimeoutSec) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			result, err := RunCommand(ctx, dir, in.Command, in.Args, timeout)
			if err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			data, _ := json.Marshal(result)
			return Output{
				Success: result.ExitCode == 0,
				Message: fmt.Sprintf("exit code %d", result.ExitCode),
				Data:    data,
			}, nil
		},
	}
}

// RunCommand executes command with args in dir under timeout, returning its
// exit code and captured output. Shared by the runCommand tool and the
// executor's verification step so both observe identical process semantics
// (spec.md §4.14's "idempotent verification" invariant).
func RunCommand(ctx context.Context, dir, command string, args []string, timeout time.Duration) (runCommandOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(runErr, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return runCommandOutput{}, runErr
		}
	}

	return runCommandOutput{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// NewSearchCodeTool builds the searchCode tool atop a BleveGrep instance.
func NewSearchCodeTool(grep *BleveGrep) *Tool {
	schema, err := ForInput[searchCodeInput]()
	if err != nil {
		schema = nil
	}
	return &Tool{
		Name:        "searchCode",
		Description: "Lexical grep-style search over the full content of indexed files.",
		Schema:      schema,
		Positional:  []string{"query", "limit"},
		Execute: func(ctx context.Context, raw Input) (Output, error) {
			var in searchCodeInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			limit := in.Limit
			if limit <= 0 {
				limit = 10
			}
			hits, err := grep.Search(ctx, in.Query, limit)
			if err != nil {
				return Output{Success: false, Message: err.Error()}, nil
			}
			data, _ := json.Marshal(hits)
			return Output{Success: true, Message: fmt.Sprintf("%d matches", len(hits)), Data: data}, nil
		},
	}
}
