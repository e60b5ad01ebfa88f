package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// Runner executes one task to completion, blocking the calling goroutine
// until the task finishes or ctx is cancelled (spec.md §4.13: the pool
// itself does not know how a task runs — only that it eventually
// produces a Result).
type Runner func(ctx context.Context, taskID string) (Result, error)

// Result is one task's outcome, returned from Run in completion order
// (spec.md §4.13: "Outputs: list of TaskResult in completion order").
type Result struct {
	TaskID  string
	Success bool
	Error   error
}

// Pool schedules a Graph's nodes through Runner under bounded
// concurrency, honoring dependency edges and file-claim conflicts
// (spec.md §4.13).
type Pool struct {
	graph          *Graph
	maxConcurrency int
	runner         Runner
	cancelled      atomic.Bool
}

// New constructs a Pool over graph, defaulting max concurrency to the
// teacher's CPU-proportional sizing.
func New(graph *Graph, runner Runner) *Pool {
	return &Pool{graph: graph, maxConcurrency: defaultMaxConcurrency(), runner: runner}
}

// WithMaxConcurrency overrides the default concurrency bound.
func (p *Pool) WithMaxConcurrency(n int) *Pool {
	if n > 0 {
		p.maxConcurrency = n
	}
	return p
}

// Cancel sets the pool-level cancel flag: no further tasks are admitted,
// but already-running tasks are left to observe ctx cancellation at their
// own next await point (spec.md §5 "asks running tasks to cancel at the
// next await point").
func (p *Pool) Cancel() { p.cancelled.Store(true) }

// Run drives graph to completion, returning every node's Result in
// completion order. An empty graph returns an empty result with no error
// (spec.md §4.13).
func (p *Pool) Run(ctx context.Context) ([]Result, error) {
	if len(p.graph.nodes) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	completed := make(map[string]bool, len(p.graph.nodes))
	resolved := make(map[string]bool, len(p.graph.nodes))
	runningClaims := make(map[string][]string)
	var results []Result
	inFlight := 0
	done := make(chan struct{}, len(p.graph.nodes))

	var skipDependents func(failedID string)
	skipDependents = func(failedID string) {
		for _, id := range p.graph.order {
			if resolved[id] {
				continue
			}
			for _, dep := range p.graph.nodes[id].Dependencies {
				if dep == failedID {
					resolved[id] = true
					results = append(results, Result{TaskID: id, Success: false, Error: coreerr.DependencyFailed(failedID)})
					skipDependents(id)
					break
				}
			}
		}
	}

	wg := conc.NewWaitGroup()

	schedule := func() int {
		mu.Lock()
		if p.cancelled.Load() {
			mu.Unlock()
			return 0
		}
		ready := p.graph.readySet(resolved, completed)
		var claims []string
		for _, c := range runningClaims {
			claims = append(claims, c...)
		}
		budget := p.maxConcurrency - inFlight
		if budget <= 0 {
			mu.Unlock()
			return 0
		}
		admitted := admissible(ready, p.graph.nodes, claims, budget)
		for _, id := range admitted {
			resolved[id] = true
			runningClaims[id] = p.graph.nodes[id].FileClaims
			inFlight++
		}
		mu.Unlock()

		for _, id := range admitted {
			taskID := id
			wg.Go(func() {
				result, err := p.runner(gctx, taskID)
				if err != nil {
					result = Result{TaskID: taskID, Success: false, Error: err}
				} else {
					result.TaskID = taskID
				}

				mu.Lock()
				results = append(results, result)
				if result.Success {
					completed[taskID] = true
				} else {
					skipDependents(taskID)
				}
				delete(runningClaims, taskID)
				inFlight--
				mu.Unlock()

				done <- struct{}{}
			})
		}
		return len(admitted)
	}

	g.Go(func() error {
		for {
			mu.Lock()
			total := len(p.graph.nodes)
			resolvedCount := len(resolved)
			busy := inFlight
			mu.Unlock()

			if resolvedCount == total && busy == 0 {
				return nil
			}
			if gctx.Err() != nil && busy == 0 {
				return gctx.Err()
			}

			admittedNow := schedule()

			mu.Lock()
			busy = inFlight
			mu.Unlock()

			if admittedNow == 0 && busy == 0 {
				return nil // no further progress possible; return what we have
			}
			if busy > 0 {
				select {
				case <-done:
				case <-gctx.Done():
				}
			}
		}
	})

	waitErr := g.Wait()
	wg.Wait()

	if waitErr != nil && waitErr != context.Canceled && waitErr != context.DeadlineExceeded {
		return results, waitErr
	}
	return results, nil
}
