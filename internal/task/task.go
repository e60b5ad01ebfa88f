// Package task implements the Task Model & Decision Protocol (spec.md
// §4.11): Task/Subtask records, the three-variant Decision the assessor
// model returns, and the bounded state machine that drives a task through
// assessment, decomposition, and execution.
//
// Grounded on original_source's `crates/merlin-core/src/conversation.rs`
// (TaskId/Subtask/WorkUnit shapes) and `crates/merlin-agent/src/agent/
// executor.rs` (the Decision/TaskAction dispatch this package's State
// machine mirrors).
package task

import (
	"time"

	"github.com/google/uuid"
)

// State is a Task's position in the assess/execute state machine
// (spec.md §3 Task.state).
type State string

const (
	StatePending          State = "Pending"
	StateAssessing        State = "Assessing"
	StateExecuting        State = "Executing"
	StateAwaitingSubtasks State = "AwaitingSubtasks"
	StateCompleted        State = "Completed"
	StateFailed           State = "Failed"
)

// DecisionKind tags which Decision variant is populated.
type DecisionKind string

const (
	DecisionComplete      DecisionKind = "Complete"
	DecisionDecompose     DecisionKind = "Decompose"
	DecisionGatherContext DecisionKind = "GatherContext"
)

// DecomposeMode controls whether a Decompose decision's subtasks run one
// after another or concurrently (spec.md §3 Decision.Decompose.mode;
// spec.md §9 records that parallel-within-a-task is deferred, so today
// the executor always honors Sequential regardless of this field).
type DecomposeMode string

const (
	Sequential DecomposeMode = "Sequential"
	Parallel   DecomposeMode = "Parallel"
)

// Decision is the spec.md §3 tagged variant:
// `Complete{result} | Decompose{subtasks, mode} | GatherContext{needs}`.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Decision struct {
	Kind DecisionKind

	// Complete
	Result string

	// Decompose
	Subtasks []Subtask
	Mode     DecomposeMode

	// GatherContext
	Needs []string
}

// CompleteDecision constructs a Complete{result} decision.
func CompleteDecision(result string) Decision {
	return Decision{Kind: DecisionComplete, Result: result}
}

// DecomposeDecision constructs a Decompose{subtasks, mode} decision.
func DecomposeDecision(subtasks []Subtask, mode DecomposeMode) Decision {
	return Decision{Kind: DecisionDecompose, Subtasks: subtasks, Mode: mode}
}

// GatherContextDecision constructs a GatherContext{needs} decision.
func GatherContextDecision(needs []string) Decision {
	return Decision{Kind: DecisionGatherContext, Needs: needs}
}

// SubtaskStatus is a Subtask's lifecycle position (spec.md §3).
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "Pending"
	SubtaskInProgress SubtaskStatus = "InProgress"
	SubtaskCompleted  SubtaskStatus = "Completed"
	SubtaskFailed     SubtaskStatus = "Failed"
	SubtaskSkipped    SubtaskStatus = "Skipped"
)

// Verification is a Subtask's optional pass/fail check (spec.md §3
// Subtask.verification, spec.md §6 "a shell command string and an
// expected exit code").
type Verification struct {
	Command          string
	ExpectedExitCode int
}

// Subtask is one unit of work produced by a Decompose decision
// (spec.md §3).
type Subtask struct {
	ID           string
	Description  string
	Difficulty   int
	Status       SubtaskStatus
	Verification *Verification
	Error        string
	Result       string
}

// NewSubtask constructs a Pending subtask with a fresh id.
func NewSubtask(description string, difficulty int) Subtask {
	return Subtask{ID: uuid.NewString(), Description: description, Difficulty: difficulty, Status: SubtaskPending}
}

// WithVerification attaches a verification step and returns the subtask
// for chaining.
func (s Subtask) WithVerification(command string, expectedExitCode int) Subtask {
	s.Verification = &Verification{Command: command, ExpectedExitCode: expectedExitCode}
	return s
}

// Start transitions the subtask to InProgress.
func (s *Subtask) Start() { s.Status = SubtaskInProgress }

// Complete transitions the subtask to Completed, recording result.
func (s *Subtask) Complete(result string) {
	s.Status = SubtaskCompleted
	s.Result = result
}

// Fail transitions the subtask to Failed, recording error.
func (s *Subtask) Fail(err string) {
	s.Status = SubtaskFailed
	s.Error = err
}

// Skip transitions the subtask to Skipped (spec.md §4.13's
// Skipped-Failed propagation from a failed dependency).
func (s *Subtask) Skip() { s.Status = SubtaskSkipped }

// maxGatherContextIterations bounds the Assessing→Assessing self-loop on
// repeated GatherContext decisions (spec.md §4.11: "bounded to N
// iterations; on bound exceeded → Executing with whatever context has
// been gathered").
const maxGatherContextIterations = 3

// Task is the spec.md §3 record driving one unit of user-facing work
// through the assess/execute state machine.
type Task struct {
	ID                  string
	Description         string
	difficulty          int
	State               State
	Dependencies        []string
	ContextRequirements []string
	DecisionHistory     []Decision
	ParentID            string
	FileClaims          []string

	gatherIterations int
}

// New constructs a Pending task with a fresh id.
func New(description string, difficulty int) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		difficulty:  difficulty,
		State:       StatePending,
	}
}

// Difficulty satisfies routing.Task.
func (t *Task) Difficulty() int { return t.difficulty }

// Enter transitions Pending→Assessing. Calling Enter from any other
// state is a no-op (state transitions are monotone except for the
// bounded Executing→Executing retry spec.md §3 carves out, which this
// package does not itself re-enter — the executor owns that retry).
func (t *Task) Enter() {
	if t.State == StatePending {
		t.State = StateAssessing
	}
}

// Apply records decision in the history and advances State according to
// the spec.md §4.11 state machine. Once the bounded GatherContext loop is
// exhausted, further GatherContext decisions still land the task in
// Executing rather than looping back to Assessing.
func (t *Task) Apply(decision Decision) {
	t.DecisionHistory = append(t.DecisionHistory, decision)

	switch decision.Kind {
	case DecisionComplete:
		t.State = StateExecuting
	case DecisionDecompose:
		t.State = StateAwaitingSubtasks
	case DecisionGatherContext:
		t.gatherIterations++
		if t.gatherIterations >= maxGatherContextIterations {
			t.State = StateExecuting
			return
		}
		t.State = StateAssessing
	}
}

// ApplyParseFailure handles a strict-parse failure of the assessor's
// response: the executor falls back to direct execution of the original
// task, never to another assessment round (spec.md §4.11).
func (t *Task) ApplyParseFailure() {
	t.State = StateExecuting
}

// Finish transitions Executing→Completed or Executing→Failed.
func (t *Task) Finish(ok bool) {
	if ok {
		t.State = StateCompleted
	} else {
		t.State = StateFailed
	}
}

// ExecutionContext accumulates GatherContext needs across assessment
// rounds for one task (spec.md §4.11's "update ExecutionContext and
// loop"), grounded on original_source's ExecutionContext/gather_context.
type ExecutionContext struct {
	Query     string
	Gathered  []string
	StartedAt time.Time
}

// NewExecutionContext starts a fresh context for a task's initial query.
func NewExecutionContext(query string) *ExecutionContext {
	return &ExecutionContext{Query: query, StartedAt: time.Now()}
}

// Gather appends newly-requested context needs, deduplicating against
// what has already been gathered.
func (ec *ExecutionContext) Gather(needs []string) {
	seen := make(map[string]bool, len(ec.Gathered))
	for _, g := range ec.Gathered {
		seen[g] = true
	}
	for _, n := range needs {
		if !seen[n] {
			ec.Gathered = append(ec.Gathered, n)
			seen[n] = true
		}
	}
}
