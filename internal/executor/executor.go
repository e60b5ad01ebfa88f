package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
	retrievalctx "github.com/Aman-CERP/agentcore/internal/retrieval/context"
	"github.com/Aman-CERP/agentcore/internal/routing"
	"github.com/Aman-CERP/agentcore/internal/runtime"
	"github.com/Aman-CERP/agentcore/internal/task"
	"github.com/Aman-CERP/agentcore/internal/toolset"
	"github.com/Aman-CERP/agentcore/internal/ui"
	"github.com/Aman-CERP/agentcore/internal/workspace"
)

// defaultVerificationTimeout matches spec.md §5's "configurable per-step
// timeout (default 120 s)".
const defaultVerificationTimeout = 120 * time.Second

// Result is one task's outcome, carrying enough for both the caller and
// the UI Event Channel's terminal events.
type Result struct {
	TaskID     string
	Output     string
	Success    bool
	Err        error
	DurationMS int64
	TierUsed   string
}

// taskAdapter satisfies routing.Task for an *task.Task, whose Description
// is an exported field rather than a method.
type taskAdapter struct{ t *task.Task }

func (a taskAdapter) Difficulty() int     { return a.t.Difficulty() }
func (a taskAdapter) Description() string { return a.t.Description }

// Executor drives one task through the self-determining assess/execute/
// verify/fix loop (spec.md §4.14), wiring routing, the script runtime,
// and the workspace manager together. One Executor is shared by every
// task; per-task isolation comes from constructing a fresh TaskWorkspace
// (and the tool registry bound to it) for each task's execution.
type Executor struct {
	router *routing.Router
	global *workspace.WorkspaceState
	locks  *workspace.FileLockManager

	grep             *toolset.BleveGrep
	contextRequester toolset.ContextRequester
	contextBuilder   *retrievalctx.Builder

	limits        runtime.Limits
	verifyDir     string
	verifyTimeout time.Duration
	noValidate    bool
}

// New constructs an Executor over the shared workspace state and lock
// manager, routing assessment and generation calls through router.
// verifyDir is the working directory verification commands and the
// runCommand tool execute in.
func New(router *routing.Router, global *workspace.WorkspaceState, locks *workspace.FileLockManager, verifyDir string) *Executor {
	return &Executor{
		router:        router,
		global:        global,
		locks:         locks,
		limits:        runtime.DefaultLimits(),
		verifyDir:     verifyDir,
		verifyTimeout: defaultVerificationTimeout,
	}
}

// WithGrep registers the searchCode tool's backing index.
func (e *Executor) WithGrep(g *toolset.BleveGrep) *Executor {
	e.grep = g
	return e
}

// WithContextRequester registers the requestContext tool's backend.
func (e *Executor) WithContextRequester(c toolset.ContextRequester) *Executor {
	e.contextRequester = c
	return e
}

// WithContextBuilder registers the Context Fetcher (spec.md §4.10) used to
// retrieve relevant file context for a task's query before every generate
// call. Without one, a task runs on whatever GatherContext findings it
// accumulates itself.
func (e *Executor) WithContextBuilder(b *retrievalctx.Builder) *Executor {
	e.contextBuilder = b
	return e
}

// WithLimits overrides the script runtime's resource limits.
func (e *Executor) WithLimits(l runtime.Limits) *Executor {
	e.limits = l
	return e
}

// WithVerificationTimeout overrides the default 120s verification command
// timeout.
func (e *Executor) WithVerificationTimeout(d time.Duration) *Executor {
	e.verifyTimeout = d
	return e
}

// WithNoValidate disables the verification step entirely, mirroring the
// CLI's --no-validate flag (spec.md §6).
func (e *Executor) WithNoValidate(v bool) *Executor {
	e.noValidate = v
	return e
}

// Execute drives t through the self-determining loop (or straight to
// execution, for simple conversational tasks) and returns its Result.
// Every state transition emits an Event on send (spec.md §4.14's
// "Streaming" clause).
func (e *Executor) Execute(ctx context.Context, t *task.Task, send ui.Sender) Result {
	start := time.Now()
	send.Send(ui.Event{Kind: ui.EventTaskStarted, TaskID: t.ID})

	execCtx := task.NewExecutionContext(t.Description)

	var output string
	var execErr error

	if isSimpleRequest(t.Description) {
		t.State = task.StateExecuting
		output, execErr = e.executeDirect(ctx, t, execCtx, send)
	} else {
		output, execErr = e.runSelfDetermination(ctx, t, execCtx, send)
	}

	ok := execErr == nil
	t.Finish(ok)

	if ok {
		send.Send(ui.Event{Kind: ui.EventTaskCompleted, TaskID: t.ID, Output: output})
	} else {
		send.Send(ui.Event{Kind: ui.EventTaskFailed, TaskID: t.ID, Error: execErr.Error()})
	}

	return Result{
		TaskID:     t.ID,
		Output:     output,
		Success:    ok,
		Err:        execErr,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// runSelfDetermination is spec.md §4.14's loop body: Route → Assess →
// {Complete, GatherContext, Decompose}, bounded by task.Task's own
// GatherContext iteration counter.
func (e *Executor) runSelfDetermination(ctx context.Context, t *task.Task, execCtx *task.ExecutionContext, send ui.Sender) (string, error) {
	t.Enter()
	adapter := taskAdapter{t}

	for {
		decision, routeErr := e.router.Route(ctx, adapter)
		if routeErr != nil {
			return "", routeErr
		}
		provider, ok := e.router.Provider(decision.ModelID)
		if !ok {
			return "", coreerr.ProviderUnavailable(decision.ModelID)
		}

		send.Send(ui.Event{
			Kind: ui.EventTaskStepStarted, TaskID: t.ID, StepID: "analysis", StepType: "thinking",
			Message: "Analyzing task complexity and determining execution strategy",
		})

		query := fmt.Sprintf("Analyze this task and decide if you can complete it immediately or if it needs decomposition:\n\n%q", t.Description)
		contextText := e.buildContextText(t.Description, execCtx.Gathered)

		resp, genErr := provider.Generate(ctx, query, contextText)
		if genErr != nil {
			// Assessment-stage failures (not route/provider-lookup
			// failures) fall back to direct execution rather than
			// failing the task outright (spec.md §4.11, grounded on
			// original_source's assess_task_with_provider →
			// execute_self_determining fallback).
			send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "analysis"})
			t.ApplyParseFailure()
			break
		}

		parsed, parseErr := ParseAssessment(resp.Text)
		if parseErr != nil {
			send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "analysis"})
			t.ApplyParseFailure()
			break
		}

		send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: t.ID, Output: resp.Text})
		send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "analysis"})
		t.Apply(parsed)

		switch parsed.Kind {
		case task.DecisionComplete:
			return parsed.Result, nil

		case task.DecisionDecompose:
			return e.executeWithSubtasks(ctx, t, parsed.Subtasks, send)

		case task.DecisionGatherContext:
			total := len(parsed.Needs)
			send.Send(ui.Event{
				Kind: ui.EventTaskProgress, TaskID: t.ID,
				Progress: ui.TaskProgress{Stage: "Gathering Context", Current: 0, Total: &total, Message: "Fetching: " + strings.Join(parsed.Needs, ", ")},
			})
			send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: t.ID, Output: "Gathering context: " + strings.Join(parsed.Needs, ", ")})

			execCtx.Gather(gatherFindings(parsed.Needs))

			if t.State == task.StateExecuting {
				// Bounded iteration count exhausted; task.Apply already
				// moved us to Executing, so fall through to direct
				// execution with whatever context was gathered.
				break
			}
			continue
		}
		break
	}

	return e.executeDirect(ctx, t, execCtx, send)
}

// buildContextText assembles the text handed to a provider's generate
// call: the Context Fetcher's retrieval-backed file context (spec.md
// §4.10), if one is registered, followed by whatever GatherContext
// findings this task has accumulated on its own (spec.md §4.11). A
// retrieval failure is swallowed rather than failing the task — context
// is an aid to generation, not a precondition for it.
func (e *Executor) buildContextText(query string, gathered []string) string {
	var parts []string

	if e.contextBuilder != nil {
		if built, err := e.contextBuilder.BuildContext(query); err == nil {
			parts = append(parts, renderRetrievedContext(built))
		}
	}
	if len(gathered) > 0 {
		parts = append(parts, strings.Join(gathered, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

// renderRetrievedContext flattens a retrieved Context into the flat text
// a Provider.Generate call expects, one file block per merged range.
func renderRetrievedContext(c retrievalctx.Context) string {
	var sb strings.Builder
	if c.SystemPrompt != "" {
		sb.WriteString(c.SystemPrompt)
		sb.WriteString("\n\n")
	}
	for _, f := range c.Files {
		sb.WriteString("--- ")
		sb.WriteString(f.Path)
		sb.WriteString(" ---\n")
		sb.WriteString(f.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// gatherFindings formats each requested context need into a human-
// readable finding, grounded on original_source's gather_context (file /
// command / generic classification by keyword).
func gatherFindings(needs []string) []string {
	findings := make([]string, 0, len(needs))
	for _, need := range needs {
		lower := strings.ToLower(need)
		switch {
		case strings.Contains(lower, "file"):
			findings = append(findings, "Gathered file context for: "+need)
		case strings.Contains(lower, "command"):
			findings = append(findings, "Gathered command output for: "+need)
		default:
			findings = append(findings, "Gathered context for: "+need)
		}
	}
	return findings
}

// executeWithSubtasks runs subtasks sequentially (spec.md §4.14 step 4;
// spec.md §9 records why parallel-within-a-task is deferred), combining
// their outputs. A subtask's verification+auto-fix step runs here, after
// its own self-determination completes, since Verification is a Subtask
// property rather than a Task one (spec.md §3).
func (e *Executor) executeWithSubtasks(ctx context.Context, parent *task.Task, subtasks []task.Subtask, send ui.Sender) (string, error) {
	total := len(subtasks)
	send.Send(ui.Event{
		Kind: ui.EventTaskProgress, TaskID: parent.ID,
		Progress: ui.TaskProgress{Stage: "Decomposing", Current: 0, Total: &total, Message: fmt.Sprintf("Breaking into %d subtasks", total)},
	})
	send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: parent.ID, Output: fmt.Sprintf("Decomposing into %d subtasks", total)})

	var outputs []string
	var firstErr error

	for i := range subtasks {
		st := &subtasks[i]
		st.Start()

		send.Send(ui.Event{
			Kind: ui.EventTaskProgress, TaskID: parent.ID,
			Progress: ui.TaskProgress{Stage: "Executing", Current: i, Total: &total, Message: fmt.Sprintf("Subtask %d/%d", i+1, total)},
		})
		send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: parent.ID, Output: "Executing subtask: " + st.Description})

		subtask := task.New(st.Description, st.Difficulty)
		subtask.ParentID = parent.ID

		result := e.Execute(ctx, subtask, send)
		if result.Err != nil {
			st.Fail(result.Err.Error())
			if firstErr == nil {
				firstErr = result.Err
			}
			continue
		}

		if st.Verification != nil && !e.noValidate {
			if verr := e.runVerificationWithFix(ctx, subtask, st.Verification, send); verr != nil {
				st.Fail(verr.Error())
				if firstErr == nil {
					firstErr = verr
				}
				continue
			}
		}

		st.Complete(result.Output)
		outputs = append(outputs, result.Output)
	}

	combined := strings.Join(outputs, "\n\n")
	return combined, firstErr
}

// runVerificationWithFix runs v's command once; on a non-matching exit
// code it assembles a fix prompt from the exact stderr and exit code,
// asks the model for a fix, re-executes any returned script, and
// re-verifies exactly once more. A second failure is terminal for the
// subtask (spec.md §4.14 step 3, spec.md §7).
func (e *Executor) runVerificationWithFix(ctx context.Context, t *task.Task, v *task.Verification, send ui.Sender) error {
	send.Send(ui.Event{Kind: ui.EventTaskStepStarted, TaskID: t.ID, StepID: "verification", StepType: "command"})

	exitCode, _, stderr, err := e.runVerification(ctx, v)
	if err != nil {
		return err
	}
	if exitCode == v.ExpectedExitCode {
		send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "verification"})
		return nil
	}

	send.Send(ui.Event{Kind: ui.EventTaskStepFailed, TaskID: t.ID, StepID: "verification", Error: stderr})

	adapter := taskAdapter{t}
	decision, routeErr := e.router.Route(ctx, adapter)
	if routeErr != nil {
		return coreerr.VerificationFailed(exitCode, stderr)
	}
	provider, ok := e.router.Provider(decision.ModelID)
	if !ok {
		return coreerr.VerificationFailed(exitCode, stderr)
	}

	fixPrompt := fmt.Sprintf(
		"The previous change failed verification.\nCommand: %s\nExit code: %d (expected %d)\nStderr:\n%s\n\nProvide a corrected fenced ```script block.",
		v.Command, exitCode, v.ExpectedExitCode, stderr,
	)
	resp, genErr := provider.Generate(ctx, fixPrompt, "")
	if genErr != nil {
		return coreerr.VerificationFailed(exitCode, stderr)
	}

	if blocks := runtime.ExtractScriptBlocks(resp.Text); len(blocks) > 0 {
		rt := runtime.New(e.toolsForVerification())
		_, _ = rt.Execute(ctx, strings.Join(blocks, "\n\n"))
	}

	exitCode2, _, stderr2, err := e.runVerification(ctx, v)
	if err != nil {
		return err
	}
	if exitCode2 == v.ExpectedExitCode {
		send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "verification"})
		return nil
	}

	return coreerr.VerificationFailed(exitCode2, stderr2)
}

// runVerification shells out v.Command via runCommand's bounded
// subprocess helper (spec.md §6: "a shell command string and an expected
// exit code").
func (e *Executor) runVerification(ctx context.Context, v *task.Verification) (exitCode int, stdout, stderr string, err error) {
	result, err := toolset.RunCommand(ctx, e.verifyDir, "sh", []string{"-c", v.Command}, e.verifyTimeout)
	if err != nil {
		return 0, "", "", err
	}
	return result.ExitCode, result.Stdout, result.Stderr, nil
}

// executeDirect builds the model's context, generates a response,
// extracts and runs any script blocks, and resolves the runtime's
// terminal value into output text (spec.md §4.14 "For execution (direct
// or post-decomposition)").
func (e *Executor) executeDirect(ctx context.Context, t *task.Task, execCtx *task.ExecutionContext, send ui.Sender) (string, error) {
	send.Send(ui.Event{Kind: ui.EventTaskStepStarted, TaskID: t.ID, StepID: "model_execution", StepType: "generation"})

	adapter := taskAdapter{t}
	contextText := e.buildContextText(t.Description, execCtx.Gathered)
	resp, _, err := e.router.Generate(ctx, adapter, t.Description, contextText)
	if err != nil {
		return "", err
	}
	send.Send(ui.Event{Kind: ui.EventTaskStepCompleted, TaskID: t.ID, StepID: "model_execution"})

	blocks := runtime.ExtractScriptBlocks(resp.Text)
	if len(blocks) == 0 {
		send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: t.ID, Output: resp.Text})
		return resp.Text, nil
	}

	tw, err := e.newWorkspace(ctx, t.ID, t.FileClaims)
	if err != nil {
		return "", err
	}
	defer tw.Rollback()

	reg, err := e.buildTools(tw)
	if err != nil {
		return "", err
	}
	rt := runtime.New(reg).WithLimits(e.limits)

	val, runErr := rt.Execute(ctx, strings.Join(blocks, "\n\n"))
	if runErr != nil {
		return "", runErr
	}

	output := resolveOutput(val)
	output = runtime.ExtractOutputSection(output)

	if _, err := tw.Commit(); err != nil {
		return "", err
	}

	send.Send(ui.Event{Kind: ui.EventTaskOutput, TaskID: t.ID, Output: output})
	return output, nil
}

// resolveOutput converts a Runtime.Execute result into output text,
// recognizing the {done:true,result} / {done:false,continue} shapes
// (spec.md §4.14 step 2). A done:false continuation is surfaced as-is
// rather than respawned — original_source's execute_streaming punts on
// this too ("Actual task spawning would happen in the orchestrator").
func resolveOutput(val any) string {
	m, ok := val.(map[string]any)
	if !ok {
		if val == nil {
			return ""
		}
		return fmt.Sprint(val)
	}

	if done, ok := m["done"].(bool); ok {
		if done {
			if r, ok := m["result"]; ok {
				return fmt.Sprint(r)
			}
			return ""
		}
		if next, ok := m["continue"]; ok {
			return "Continuing with: " + fmt.Sprint(next)
		}
	}

	if r, ok := m["result"]; ok {
		return fmt.Sprint(r)
	}
	return fmt.Sprint(m)
}

// newWorkspace constructs a TaskWorkspace for one task's file claims.
func (e *Executor) newWorkspace(ctx context.Context, taskID string, lockedPaths []string) (*workspace.TaskWorkspace, error) {
	return workspace.New(ctx, taskID, lockedPaths, e.global, e.locks)
}

// buildTools assembles the standard tool set bound to tw, for one
// task's execution only. A fresh Registry per task is cheap and keeps
// each task's file tools isolated to its own TaskWorkspace snapshot
// while still satisfying spec.md §5's "ToolRegistry: effectively
// immutable after startup" — the set of tool names never changes, only
// which workspace view backs the file tools.
func (e *Executor) buildTools(tw *workspace.TaskWorkspace) (*toolset.Registry, error) {
	reg := toolset.NewRegistry()
	adapter := workspace.NewAdapter(tw)

	if err := reg.Register(toolset.NewReadFileTool(adapter)); err != nil {
		return nil, err
	}
	if err := reg.Register(toolset.NewWriteFileTool(adapter)); err != nil {
		return nil, err
	}
	if e.contextRequester != nil {
		if err := reg.Register(toolset.NewRequestContextTool(e.contextRequester)); err != nil {
			return nil, err
		}
	}
	if e.grep != nil {
		if err := reg.Register(toolset.NewSearchCodeTool(e.grep)); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(toolset.NewRunCommandTool(e.verifyDir)); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// toolsForVerification builds a minimal registry (runCommand only) for
// the auto-fix script's re-execution, which operates directly against
// verifyDir rather than a TaskWorkspace snapshot.
func (e *Executor) toolsForVerification() *toolset.Registry {
	reg := toolset.NewRegistry()
	_ = reg.Register(toolset.NewRunCommandTool(e.verifyDir))
	reg.Freeze()
	return reg
}
