package workspace

import (
	"context"
	"sort"
	"sync"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// fifoLock is a single-path exclusive lock with strict FIFO fairness: a
// waiter is granted the lock in the order it queued, not in whatever
// order the Go scheduler wakes goroutines (spec.md §3 FileLock: "per-path
// exclusive lock with FIFO fairness").
type fifoLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (l *fifoLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.removeWaiter(ch)
		return ctx.Err()
	}
}

func (l *fifoLock) removeWaiter(ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == ch {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func (l *fifoLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next) // ownership transfers directly to next; held stays true
		return
	}
	l.held = false
}

// FileLockManager hands out per-path exclusive locks, always acquired in
// canonical (lexicographically sorted) order across a requested path set
// to prevent deadlock between tasks whose claim sets overlap (spec.md
// §4.12 TaskWorkspace creation step 2; spec.md §5 "no two tasks ever hold
// overlapping claim sets").
type FileLockManager struct {
	mu    sync.Mutex
	locks map[string]*fifoLock
}

// NewFileLockManager constructs an empty lock manager.
func NewFileLockManager() *FileLockManager {
	return &FileLockManager{locks: make(map[string]*fifoLock)}
}

func (m *FileLockManager) lockFor(path string) *fifoLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &fifoLock{}
		m.locks[path] = l
	}
	return l
}

// AcquireWriteLocks sorts paths canonically and acquires each in that
// order, returning a release function that unlocks all of them in
// reverse order. If any acquisition fails (ctx cancelled), locks already
// acquired are released before returning the error.
func (m *FileLockManager) AcquireWriteLocks(ctx context.Context, paths []string) (func(), error) {
	sorted := sortedUnique(paths)

	acquired := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if err := m.lockFor(p).Acquire(ctx); err != nil {
			for i := len(acquired) - 1; i >= 0; i-- {
				m.lockFor(acquired[i]).Release()
			}
			return nil, coreerr.LockTimeout(p)
		}
		acquired = append(acquired, p)
	}

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			m.lockFor(acquired[i]).Release()
		}
	}
	return release, nil
}

func sortedUnique(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
