package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	retrievalctx "github.com/Aman-CERP/agentcore/internal/retrieval/context"
	"github.com/Aman-CERP/agentcore/internal/retrieval/fusion"
	"github.com/Aman-CERP/agentcore/internal/routing"
	"github.com/Aman-CERP/agentcore/internal/task"
	"github.com/Aman-CERP/agentcore/internal/ui"
	"github.com/Aman-CERP/agentcore/internal/workspace"
)

// sequenceProvider returns each queued response in order, looping on the
// last entry once exhausted, and is always available.
type sequenceProvider struct {
	mu        sync.Mutex
	responses []routing.Response
	errs      []error
	calls     int
}

func (p *sequenceProvider) Generate(ctx context.Context, query, contextText string) (routing.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.responses[i], err
}
func (p *sequenceProvider) IsAvailable(ctx context.Context) bool { return true }
func (p *sequenceProvider) EstimateCost(string) float64         { return 0 }

// capturingProvider wraps sequenceProvider's queued-response behavior and
// additionally hands the (query, context) pair each Generate call received
// to onGenerate, for tests asserting on what context text was assembled.
type capturingProvider struct {
	sequenceProvider
	onGenerate func(query, contextText string)
}

func (p *capturingProvider) Generate(ctx context.Context, query, contextText string) (routing.Response, error) {
	if p.onGenerate != nil {
		p.onGenerate(query, contextText)
	}
	return p.sequenceProvider.Generate(ctx, query, contextText)
}

func newRouter(p routing.Provider) *routing.Router {
	r := routing.New()
	r.Register("small", p)
	r.Register("standard", p)
	r.Register("large", p)
	return r
}

func newExecutor(t *testing.T, p routing.Provider) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	global := workspace.New(dir)
	locks := workspace.NewFileLockManager()
	ex := New(newRouter(p), global, locks, dir)
	return ex, dir
}

func TestExecuteSimpleConversationalSkipsAssessment(t *testing.T) {
	p := &sequenceProvider{responses: []routing.Response{{Text: "Hello there!"}}}
	ex, _ := newExecutor(t, p)

	tk := task.New("hi", 1)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, "Hello there!", result.Output)
	assert.Equal(t, 1, p.calls)
}

func TestExecuteCompleteDecisionShortCircuits(t *testing.T) {
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "```json\n{\"action\":\"complete\",\"result\":\"42\"}\n```"},
	}}
	ex, _ := newExecutor(t, p)

	tk := task.New("what is the meaning of the universe, compute it now", 3)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, "42", result.Output)
	assert.Equal(t, task.StateCompleted, tk.State)
}

func TestExecuteGatherContextLoopBoundsThenExecutesDirectly(t *testing.T) {
	gather := routing.Response{Text: "```json\n{\"action\":\"gather_context\",\"needs\":[\"file:a.go\"]}\n```"}
	p := &sequenceProvider{responses: []routing.Response{
		gather, gather, gather,
		{Text: "final direct answer"},
	}}
	ex, _ := newExecutor(t, p)

	tk := task.New("please investigate the whole repository structure", 4)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.Equal(t, "final direct answer", result.Output)
	assert.Equal(t, 4, p.calls) // 3 gather rounds + 1 direct execution
}

func TestExecuteParseFailureFallsBackToDirectExecution(t *testing.T) {
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "not a valid decision at all"},
		{Text: "direct execution result"},
	}}
	ex, _ := newExecutor(t, p)

	tk := task.New("please refactor the whole authentication subsystem", 5)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.Equal(t, "direct execution result", result.Output)
	assert.Equal(t, 2, p.calls)
}

func TestExecuteDecomposeRecursesIntoSubtasks(t *testing.T) {
	decompose := `{"action":"decompose","subtasks":[{"description":"hi","difficulty":1},{"description":"hey","difficulty":1}],"mode":"Sequential"}`
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "```json\n" + decompose + "\n```"},
		{Text: "subtask one done"},
		{Text: "subtask two done"},
	}}
	ex, _ := newExecutor(t, p)

	tk := task.New("please set up the whole project from scratch", 6)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.Output, "subtask one done")
	assert.Contains(t, result.Output, "subtask two done")
}

func TestExecuteVerificationFailureTriggersOneAutoFixAttempt(t *testing.T) {
	decompose := `{"action":"decompose","subtasks":[{"description":"hi","difficulty":1,"verify_command":"test -f marker.txt","verify_exit_code":0}],"mode":"Sequential"}`
	fix := "```script\nrunCommand(\"touch\", [\"marker.txt\"]);\n```"
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "```json\n" + decompose + "\n```"},
		{Text: "hi there"},    // subtask's own (simple) execution
		{Text: fix},           // auto-fix prompt response
	}}
	ex, dir := newExecutor(t, p)

	tk := task.New("please bootstrap the whole marker workflow end to end", 6)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	_, statErr := os.Stat(filepath.Join(dir, "marker.txt"))
	assert.NoError(t, statErr, "auto-fix script should have created the marker file")
}

func TestExecuteVerificationSecondFailureIsTerminal(t *testing.T) {
	decompose := `{"action":"decompose","subtasks":[{"description":"hi","difficulty":1,"verify_command":"test -f nonexistent-marker.txt","verify_exit_code":0}],"mode":"Sequential"}`
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "```json\n" + decompose + "\n```"},
		{Text: "hi there"},
		{Text: "```script\nconst x = 1;\n```"}, // fix script doesn't create the marker
	}}
	ex, _ := newExecutor(t, p)

	tk := task.New("please bootstrap the whole missing marker workflow", 6)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.Error(t, result.Err)
	assert.False(t, result.Success)
}

func TestExecuteNoValidateSkipsVerification(t *testing.T) {
	decompose := `{"action":"decompose","subtasks":[{"description":"hi","difficulty":1,"verify_command":"test -f never-created.txt","verify_exit_code":0}],"mode":"Sequential"}`
	p := &sequenceProvider{responses: []routing.Response{
		{Text: "```json\n" + decompose + "\n```"},
		{Text: "hi there"},
	}}
	ex, _ := newExecutor(t, p)
	ex.WithNoValidate(true)

	tk := task.New("please bootstrap the whole disabled verification workflow", 6)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
}

type emptyRetriever struct{}

func (emptyRetriever) Search(query string, topK int) ([]fusion.Result, error) {
	return nil, nil
}

func TestExecuteWithContextBuilderIncludesSystemPromptInGeneratedContext(t *testing.T) {
	var seenContext string
	p := &capturingProvider{onGenerate: func(query, ctxText string) { seenContext = ctxText }}
	p.responses = []routing.Response{{Text: "answer"}}
	ex, _ := newExecutor(t, p)

	builder := retrievalctx.New(t.TempDir(), emptyRetriever{}, "You are a helpful coding assistant.", 8)
	ex.WithContextBuilder(builder)

	tk := task.New("where is the retry helper implemented in this codebase", 3)
	result := ex.Execute(context.Background(), tk, ui.Sender{})

	require.NoError(t, result.Err)
	assert.Contains(t, seenContext, "You are a helpful coding assistant.")
}

func TestEventChannelDropsOnOverflowRatherThanBlocking(t *testing.T) {
	ch := ui.NewEventChannel(1)
	sender := ch.Sender()

	sender.Send(ui.Event{Kind: ui.EventTaskStarted, TaskID: "a"})
	sender.Send(ui.Event{Kind: ui.EventTaskStarted, TaskID: "b"}) // buffer full, dropped

	assert.Equal(t, int64(1), ch.Dropped())
}
