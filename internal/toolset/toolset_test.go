package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "a tool",
		Execute: func(ctx context.Context, in Input) (Output, error) {
			return Output{Success: true, Message: "ok"}, nil
		},
	}
}

func TestRegisterGetList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopTool("a")))
	require.NoError(t, r.Register(noopTool("b")))

	tool, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", tool.Name)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopTool("a")))
	err := r.Register(noopTool("a"))
	require.Error(t, err)
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopTool("a")))
	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(noopTool("b"))
	require.Error(t, err)
}

func TestGenerateSignaturesIsStableAndIncludesAllTools(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "b", Description: "second", Positional: []string{"x"}}))
	require.NoError(t, r.Register(&Tool{Name: "a", Description: "first", Positional: []string{"y", "z"}}))

	sig := r.GenerateSignatures()
	assert.Contains(t, sig, "a(y, z) — first")
	assert.Contains(t, sig, "b(x) — second")
	assert.Less(t, indexOf(sig, "a("), indexOf(sig, "b("))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestAdaptPositionalMapsArgsToNames(t *testing.T) {
	tool := &Tool{Name: "writeFile", Positional: []string{"path", "content"}}
	raw, err := AdaptPositional(tool, []any{"util.go", "package util"})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Equal(t, "util.go", obj["path"])
	assert.Equal(t, "package util", obj["content"])
}

func TestAdaptPositionalTooManyArgsFails(t *testing.T) {
	tool := &Tool{Name: "readFile", Positional: []string{"path"}}
	_, err := AdaptPositional(tool, []any{"a.go", "extra"})
	require.Error(t, err)
}

func TestAdaptPositionalNoConventionFails(t *testing.T) {
	tool := &Tool{Name: "custom"}
	_, err := AdaptPositional(tool, []any{"x"})
	require.Error(t, err)
}

type fakeReader struct {
	files map[string]string
}

func (f fakeReader) Read(ctx context.Context, path string) (string, bool, error) {
	c, ok := f.files[path]
	return c, ok, nil
}

func TestReadFileTool(t *testing.T) {
	tool := NewReadFileTool(fakeReader{files: map[string]string{"a.go": "package a"}})

	out, err := tool.Execute(context.Background(), []byte(`{"path":"a.go"}`))
	require.NoError(t, err)
	assert.True(t, out.Success)

	var content string
	require.NoError(t, json.Unmarshal(out.Data, &content))
	assert.Equal(t, "package a", content)
}

func TestReadFileToolMissing(t *testing.T) {
	tool := NewReadFileTool(fakeReader{files: map[string]string{}})
	out, err := tool.Execute(context.Background(), []byte(`{"path":"missing.go"}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
}

type fakeWriter struct {
	written map[string]string
	err     error
}

func (f *fakeWriter) WriteFile(ctx context.Context, path, content string) error {
	if f.err != nil {
		return f.err
	}
	f.written[path] = content
	return nil
}

func TestWriteFileTool(t *testing.T) {
	w := &fakeWriter{written: map[string]string{}}
	tool := NewWriteFileTool(w)

	out, err := tool.Execute(context.Background(), []byte(`{"path":"util.go","content":"package util"}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "package util", w.written["util.go"])
}

func TestWriteFileToolPropagatesError(t *testing.T) {
	w := &fakeWriter{written: map[string]string{}, err: errors.New("disk full")}
	tool := NewWriteFileTool(w)

	out, err := tool.Execute(context.Background(), []byte(`{"path":"a.go","content":"x"}`))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "disk full")
}

type fakeRequester struct {
	files []string
}

func (f fakeRequester) RequestContext(ctx context.Context, pattern, reason string, maxFiles int) ([]string, error) {
	return f.files, nil
}

func TestRequestContextToolDefaultsMaxFiles(t *testing.T) {
	tool := NewRequestContextTool(fakeRequester{files: []string{"a.go", "b.go"}})
	out, err := tool.Execute(context.Background(), []byte(`{"pattern":"bm25","reason":"need scorer"}`))
	require.NoError(t, err)
	assert.True(t, out.Success)

	var files []string
	require.NoError(t, json.Unmarshal(out.Data, &files))
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, files)
}

func TestBleveGrepIndexAndSearch(t *testing.T) {
	grep, err := NewBleveGrep()
	require.NoError(t, err)

	require.NoError(t, grep.IndexFiles(map[string]string{
		"bm25.go":   "func Search implements BM25 scoring",
		"unrelated": "nothing to see here",
	}))

	hits, err := grep.Search(context.Background(), "BM25", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "bm25.go", hits[0].Path)
}

func TestRunCommandToolSuccess(t *testing.T) {
	tool := NewRunCommandTool(t.TempDir())
	out, err := tool.Execute(context.Background(), []byte(`{"command":"echo","args":["hi"]}`))
	require.NoError(t, err)
	assert.True(t, out.Success)

	var result runCommandOutput
	require.NoError(t, json.Unmarshal(out.Data, &result))
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hi")
}

func TestRunCommandToolNonZeroExit(t *testing.T) {
	tool := NewRunCommandTool(t.TempDir())
	out, err := tool.Execute(context.Background(), []byte(`{"command":"sh","args":["-c","exit 3"]}`))
	require.NoError(t, err)
	assert.False(t, out.Success)

	var result runCommandOutput
	require.NoError(t, json.Unmarshal(out.Data, &result))
	assert.Equal(t, 3, result.ExitCode)
}

func TestSearchCodeTool(t *testing.T) {
	grep, err := NewBleveGrep()
	require.NoError(t, err)
	require.NoError(t, grep.IndexFiles(map[string]string{"bm25.go": "BM25 scorer implementation"}))

	tool := NewSearchCodeTool(grep)
	out, err := tool.Execute(context.Background(), []byte(`{"query":"scorer"}`))
	require.NoError(t, err)
	assert.True(t, out.Success)
}
