// Package coreerr defines the flat, tagged-variant error kinds shared by the
// execution core's subsystems (spec: retrieval, runtime, workspace, executor,
// validation), each propagating upward as a single CoreError.
package coreerr

import "fmt"

// Subsystem tags the error kind's owning subsystem.
type Subsystem string

const (
	Retrieval  Subsystem = "retrieval"
	Runtime    Subsystem = "runtime"
	Workspace  Subsystem = "workspace"
	Executor   Subsystem = "executor"
	Validation Subsystem = "validation"
)

// Kind is the tagged variant within a subsystem.
type Kind string

const (
	// Retrieval kinds.
	KindModelUnavailable Kind = "ModelUnavailable"
	KindCacheCorrupt     Kind = "CacheCorrupt"
	KindIoError          Kind = "IoError"
	KindNotFinalized     Kind = "NotFinalized"

	// Runtime kinds.
	KindParse           Kind = "Parse"
	KindExecutionFailed Kind = "ExecutionFailed"
	KindTimeout         Kind = "Timeout"
	KindMemoryExceeded  Kind = "MemoryExceeded"
	KindToolError       Kind = "ToolError"

	// Workspace kinds.
	KindLockTimeout   Kind = "LockTimeout"
	KindConflict      Kind = "Conflict"
	KindCommitAborted Kind = "CommitAborted"
	KindInvalidPath   Kind = "InvalidPath"
	KindIo            Kind = "Io"

	// Executor kinds.
	KindCycleDetected    Kind = "CycleDetected"
	KindRoutingFailed    Kind = "RoutingFailed"
	KindProviderUnavail  Kind = "ProviderUnavailable"
	KindCancelled        Kind = "Cancelled"
	KindDependencyFailed Kind = "DependencyFailed"

	// Validation kinds.
	KindSyntax             Kind = "Syntax"
	KindSemantic           Kind = "Semantic"
	KindVerificationFailed Kind = "VerificationFailed"
)

// CoreError is the single propagated error type. It mirrors the teacher's
// AmanError shape (code/category/cause/detail chaining) but scopes Category
// to one of the five subsystem tags above instead of a global taxonomy.
type CoreError struct {
	Subsystem Subsystem
	Kind      Kind
	Message   string
	Cause     error
	Details   map[string]string
	Retryable bool
}

func (e *CoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s.%s", e.Subsystem, e.Kind)
	}
	return fmt.Sprintf("%s.%s: %s", e.Subsystem, e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// Is reports equality by (Subsystem, Kind) so errors.Is(err, coreerr.New(...))
// works without comparing messages or causes, matching the teacher's
// AmanError.Is code-only comparison.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Subsystem == t.Subsystem && e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New constructs a CoreError for the given subsystem/kind.
func New(sub Subsystem, kind Kind, message string, cause error) *CoreError {
	return &CoreError{Subsystem: sub, Kind: kind, Message: message, Cause: cause}
}

// Retrieval-subsystem constructors.
func ModelUnavailable(message string, cause error) *CoreError {
	return New(Retrieval, KindModelUnavailable, message, cause)
}
func CacheCorrupt(message string, cause error) *CoreError {
	return New(Retrieval, KindCacheCorrupt, message, cause)
}
func RetrievalIoError(message string, cause error) *CoreError {
	return New(Retrieval, KindIoError, message, cause)
}
func NotFinalized() *CoreError {
	return New(Retrieval, KindNotFinalized, "index queried before finalize", nil)
}

// Runtime-subsystem constructors.
func ParseError(message string, cause error) *CoreError {
	return New(Runtime, KindParse, message, cause)
}
func ExecutionFailed(reason string) *CoreError {
	return New(Runtime, KindExecutionFailed, reason, nil)
}
func Timeout() *CoreError {
	e := New(Runtime, KindTimeout, "execution exceeded wall-clock timeout", nil)
	e.Retryable = true
	return e
}
func MemoryExceeded() *CoreError {
	return New(Runtime, KindMemoryExceeded, "execution exceeded memory cap", nil)
}
func ToolError(tool, message string) *CoreError {
	return New(Runtime, KindToolError, message, nil).WithDetail("tool", tool)
}

// Workspace-subsystem constructors.
func LockTimeout(path string) *CoreError {
	return New(Workspace, KindLockTimeout, "lock acquisition timed out", nil).WithDetail("path", path)
}
func Conflict(path, reason string) *CoreError {
	return New(Workspace, KindConflict, reason, nil).WithDetail("path", path)
}
func CommitAborted() *CoreError {
	return New(Workspace, KindCommitAborted, "conflicts detected at commit", nil)
}
func InvalidPath(path string) *CoreError {
	return New(Workspace, KindInvalidPath, "absolute or invalid path", nil).WithDetail("path", path)
}
func WorkspaceIo(message string, cause error) *CoreError {
	return New(Workspace, KindIo, message, cause)
}

// Executor-subsystem constructors.
func CycleDetected(path []string) *CoreError {
	e := New(Executor, KindCycleDetected, "cycle detected in task graph", nil)
	for i, p := range path {
		e.WithDetail(fmt.Sprintf("path[%d]", i), p)
	}
	return e
}
func RoutingFailed(message string, cause error) *CoreError {
	return New(Executor, KindRoutingFailed, message, cause)
}
func ProviderUnavailable(model string) *CoreError {
	return New(Executor, KindProviderUnavail, "provider unavailable", nil).WithDetail("model", model)
}
func Cancelled() *CoreError {
	return New(Executor, KindCancelled, "cancelled", nil)
}
func DependencyFailed(taskID string) *CoreError {
	return New(Executor, KindDependencyFailed, "dependency failed", nil).WithDetail("task_id", taskID)
}

// Validation-subsystem constructors.
func SyntaxError(message string) *CoreError {
	return New(Validation, KindSyntax, message, nil)
}
func SemanticError(message string) *CoreError {
	return New(Validation, KindSemantic, message, nil)
}
func VerificationFailed(exitCode int, stderr string) *CoreError {
	return New(Validation, KindVerificationFailed, stderr, nil).
		WithDetail("exit_code", fmt.Sprintf("%d", exitCode))
}

// Has reports whether err is a CoreError of the given subsystem/kind.
func Has(err error, sub Subsystem, kind Kind) bool {
	var ce *CoreError
	for err != nil {
		if c, ok := err.(*CoreError); ok {
			ce = c
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Subsystem == sub && ce.Kind == kind
}
