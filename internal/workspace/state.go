// Package workspace implements the Parallel Workspace Manager (spec.md
// §4.12): a single shared WorkspaceState with an in-memory content
// overlay, a FIFO-fair canonical-order FileLockManager, and per-task
// snapshot-isolated TaskWorkspace instances that commit or roll back
// atomically.
//
// Grounded on original_source's
// `crates/merlin-agent/tests/transaction_state_integration.rs`
// (WorkspaceState/TaskWorkspace/FileLockManager semantics exercised by
// this package's tests) and the teacher's atomic temp-file-then-rename
// save pattern, reused here for the audit log.
package workspace

import (
	"sync"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// ChangeKind tags a pending mutation's shape (spec.md §3
// `Change ∈ {Create(content), Modify(content), Delete}`).
type ChangeKind string

const (
	Create ChangeKind = "Create"
	Modify ChangeKind = "Modify"
	Delete ChangeKind = "Delete"
)

// Change is one pending mutation against a path.
type Change struct {
	Kind    ChangeKind
	Path    string
	Content string
}

// Snapshot is a path's content (nil if absent) and monotonic version at
// the moment it was captured (spec.md §3 TaskWorkspace.base_snapshot).
type Snapshot struct {
	Content *string
	Version uint64
}

type entry struct {
	content   string
	tombstone bool
}

// WorkspaceState is the single shared source of truth for file content
// (spec.md §3): an in-memory overlay plus a monotonic per-path version
// counter used for optimistic-concurrency conflict detection. One
// WorkspaceState is shared by all tasks.
type WorkspaceState struct {
	mu       sync.RWMutex
	root     string
	overlay  map[string]*entry
	versions map[string]uint64
}

// New constructs an empty WorkspaceState rooted at root.
func New(root string) *WorkspaceState {
	return &WorkspaceState{
		root:     root,
		overlay:  make(map[string]*entry),
		versions: make(map[string]uint64),
	}
}

// RootPath returns the workspace root.
func (w *WorkspaceState) RootPath() string { return w.root }

// Read returns a path's current content and whether it exists
// (spec.md §4.12 `read(path) → content?`).
func (w *WorkspaceState) Read(path string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.overlay[path]
	if !ok || e.tombstone {
		return "", false
	}
	return e.content, true
}

// Version returns path's current monotonic version (0 if never touched).
func (w *WorkspaceState) Version(path string) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.versions[path]
}

// ApplyChanges applies changes to the overlay as a single atomic batch,
// bumping each touched path's version (spec.md §4.12
// `apply_changes([Change])` atomic over the batch).
func (w *WorkspaceState) ApplyChanges(changes []Change) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range changes {
		if c.Path == "" {
			return coreerr.InvalidPath(c.Path)
		}
	}

	for _, c := range changes {
		switch c.Kind {
		case Create, Modify:
			w.overlay[c.Path] = &entry{content: c.Content}
		case Delete:
			w.overlay[c.Path] = &entry{tombstone: true}
		}
		w.versions[c.Path]++
	}
	return nil
}

// Snapshot captures the current (content?, version) for every path
// (spec.md §4.12 `snapshot(paths) → map path→(content?,version)`).
func (w *WorkspaceState) Snapshot(paths []string) map[string]Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]Snapshot, len(paths))
	for _, p := range paths {
		snap := Snapshot{Version: w.versions[p]}
		if e, ok := w.overlay[p]; ok && !e.tombstone {
			content := e.content
			snap.Content = &content
		}
		out[p] = snap
	}
	return out
}
