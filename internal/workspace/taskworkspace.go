package workspace

import (
	"context"
	"sync"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// ConflictEntry names one locked path whose base version has diverged
// from the current global version (spec.md §4.12 check_conflicts).
type ConflictEntry struct {
	Path   string
	Reason string
}

// Report is check_conflicts' result.
type Report struct {
	Conflicts []ConflictEntry
}

// CommitResult is commit's success payload (spec.md §4.12).
type CommitResult struct {
	FilesChanged int
}

// TaskWorkspace is one task's snapshot-isolated view over the shared
// WorkspaceState (spec.md §3). Created at task start (acquiring write
// locks for all locked_paths atomically), mutated only by the owning
// task, destroyed by commit or rollback.
type TaskWorkspace struct {
	TaskID      string
	LockedPaths []string

	mu           sync.Mutex
	global       *WorkspaceState
	baseSnapshot map[string]Snapshot
	pending      map[string]Change
	release      func()
	released     bool
}

// New creates a TaskWorkspace for taskID over lockedPaths: sorts the
// paths canonically, acquires write locks in that order from manager,
// then snapshots each locked path's current (content?, version)
// (spec.md §4.12 TaskWorkspace lifecycle, steps 1-3).
func New(ctx context.Context, taskID string, lockedPaths []string, global *WorkspaceState, manager *FileLockManager) (*TaskWorkspace, error) {
	sorted := sortedUnique(lockedPaths)

	release, err := manager.AcquireWriteLocks(ctx, sorted)
	if err != nil {
		return nil, err
	}

	return &TaskWorkspace{
		TaskID:       taskID,
		LockedPaths:  sorted,
		global:       global,
		baseSnapshot: global.Snapshot(sorted),
		pending:      make(map[string]Change),
		release:      release,
	}, nil
}

// Read resolves pending ∪ base_snapshot with pending overriding snapshot
// for locked paths; paths outside LockedPaths read through to global
// state without participating in conflict checks (spec.md §4.12).
func (tw *TaskWorkspace) Read(path string) (string, bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if c, ok := tw.pending[path]; ok {
		if c.Kind == Delete {
			return "", false
		}
		return c.Content, true
	}
	if snap, ok := tw.baseSnapshot[path]; ok {
		if snap.Content == nil {
			return "", false
		}
		return *snap.Content, true
	}
	return tw.global.Read(path)
}

// CreateFile stages a file creation.
func (tw *TaskWorkspace) CreateFile(path, content string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.pending[path] = Change{Kind: Create, Path: path, Content: content}
}

// ModifyFile stages a file modification.
func (tw *TaskWorkspace) ModifyFile(path, content string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.pending[path] = Change{Kind: Modify, Path: path, Content: content}
}

// DeleteFile stages a file deletion.
func (tw *TaskWorkspace) DeleteFile(path string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.pending[path] = Change{Kind: Delete, Path: path}
}

// CheckConflicts reports, for each locked path whose base version
// differs from the current global version, a conflict entry (spec.md
// §4.12 `check_conflicts(global) → Report`).
func (tw *TaskWorkspace) CheckConflicts() Report {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	var conflicts []ConflictEntry
	for _, path := range tw.LockedPaths {
		base := tw.baseSnapshot[path]
		current := tw.global.Version(path)
		if base.Version != current {
			conflicts = append(conflicts, ConflictEntry{
				Path:   path,
				Reason: "path modified by another task since this workspace was created",
			})
		}
	}
	return Report{Conflicts: conflicts}
}

// Commit re-checks conflicts, applies all pending changes to global
// atomically if none are found, and releases all locks (spec.md §4.12
// commit steps 1-3). On conflict, locks are released without applying
// changes so the scheduler can retry with a fresh TaskWorkspace and
// snapshot (spec.md §7: CommitAborted is retryable up to twice).
func (tw *TaskWorkspace) Commit() (CommitResult, error) {
	tw.mu.Lock()
	pending := make([]Change, 0, len(tw.pending))
	for _, c := range tw.pending {
		pending = append(pending, c)
	}
	tw.mu.Unlock()

	report := tw.CheckConflicts()
	if len(report.Conflicts) > 0 {
		tw.releaseLocks()
		return CommitResult{}, coreerr.CommitAborted()
	}

	if err := tw.global.ApplyChanges(pending); err != nil {
		tw.releaseLocks()
		return CommitResult{}, err
	}

	tw.releaseLocks()
	return CommitResult{FilesChanged: len(pending)}, nil
}

// Rollback discards pending changes and releases all locks. Idempotent.
func (tw *TaskWorkspace) Rollback() error {
	tw.mu.Lock()
	tw.pending = make(map[string]Change)
	tw.mu.Unlock()

	tw.releaseLocks()
	return nil
}

func (tw *TaskWorkspace) releaseLocks() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.released {
		return
	}
	tw.released = true
	tw.release()
}
