package executor

import (
	"context"
	"strings"

	"github.com/Aman-CERP/agentcore/internal/executor/pool"
	"github.com/Aman-CERP/agentcore/internal/task"
	"github.com/Aman-CERP/agentcore/internal/ui"
)

// ProcessRequest is the core's one CLI-facing entry point (spec.md §6:
// "commands route into the core as process_request(text) → [TaskResult]").
// It wraps the request in a single-node Graph and drives it through the
// Executor Pool so a lone request exercises exactly the same admission,
// claim-conflict, and cancellation path a multi-task graph would — today
// every request starts as one top-level task; decomposition (spec.md
// §4.11's Decompose decision) happens inside Execute's own recursion, not
// by growing this top-level graph.
func (e *Executor) ProcessRequest(ctx context.Context, text string, send ui.Sender) ([]Result, error) {
	t := task.New(text, estimateDifficulty(text))

	graph, err := pool.NewGraph([]pool.Node{{ID: t.ID, FileClaims: t.FileClaims}})
	if err != nil {
		return nil, err
	}

	results := make(map[string]Result, 1)
	runner := func(ctx context.Context, taskID string) (pool.Result, error) {
		result := e.Execute(ctx, t, send)
		results[taskID] = result
		return pool.Result{TaskID: taskID, Success: result.Success, Error: result.Err}, nil
	}

	if _, err := pool.New(graph, runner).Run(ctx); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	return out, nil
}

// estimateDifficulty buckets a request's word count into a routing
// difficulty tier. No difficulty estimator survives in the retrieved
// original_source subset (only task.New's signature does), so this is
// this package's own grounded choice, deliberately coarse: isSimpleRequest
// already filters out conversational one-liners before a Task ever
// reaches the router, so this estimate only has to separate "small code
// query" from "sizeable change" for the rules in routing.New.
func estimateDifficulty(description string) int {
	words := len(strings.Fields(description))
	switch {
	case words <= 8:
		return 2
	case words <= 20:
		return 5
	default:
		return 8
	}
}
