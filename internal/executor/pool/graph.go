// Package pool implements the Executor Pool (spec.md §4.13): bounded-
// concurrency, dependency- and file-conflict-aware scheduling over a
// TaskGraph, driving each admitted task to completion via a caller-
// supplied runner function.
//
// Grounded on original_source's
// `crates/merlin-agent/tests/executor_pool_integration.rs`
// (TaskGraph/ConflictAwareTaskGraph/ExecutorPool scenarios this
// package's tests mirror: parallel execution, sequential dependencies,
// diamond dependencies, cycle detection, concurrency limits, file
// conflicts, mixed dependencies+conflicts, empty/single-task graphs).
package pool

import (
	"runtime"
	"sort"
	"strings"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// Node is one task's scheduling-relevant shape: its id, the ids it
// depends on, and the file paths it claims (spec.md §3 Task.dependencies
// / Task.file_claims).
type Node struct {
	ID           string
	Dependencies []string
	FileClaims   []string
}

// Graph is an acyclic TaskGraph, optionally conflict-aware when any node
// declares file claims (spec.md §4.13: "a TaskGraph (acyclic) or a
// ConflictAwareTaskGraph (acyclic + per-node file claims)" — this package
// folds both into one type since claim-awareness is simply the presence
// of non-empty FileClaims).
type Graph struct {
	nodes map[string]*Node
	order []string // insertion order, used for deterministic admission
}

// CaseInsensitiveClaims controls whether file claim normalization
// lowercases paths before comparison (spec.md §4.13: "case-sensitive on
// Linux, case-insensitive on case-insensitive filesystems — normalize
// claims once at graph construction"). Default false; set true when
// targeting a case-insensitive filesystem.
var CaseInsensitiveClaims = false

// NewGraph validates nodes for cycles, then constructs a Graph. Returns
// coreerr.CycleDetected{path} if a cycle is found (spec.md §4.13). A
// dependency on an id that is not in nodes is not rejected; such a node
// never becomes ready, so Pool.Run never admits it.
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(nodes))}
	for i := range nodes {
		n := nodes[i]
		n.FileClaims = normalizeClaims(n.FileClaims)
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}

	if path := g.findCycle(); path != nil {
		return nil, coreerr.CycleDetected(path)
	}
	return g, nil
}

func normalizeClaims(claims []string) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		if CaseInsensitiveClaims {
			out[i] = strings.ToLower(c)
		} else {
			out[i] = c
		}
	}
	return out
}

// findCycle runs a standard three-color DFS, returning the cyclic path
// if one exists.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.nodes[id].Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				continue // dangling dependency, not a cycle
			}
			switch color[dep] {
			case gray:
				return append(append([]string{}, path...), dep)
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// readySet returns, in deterministic (insertion) order, the ids not yet
// resolved whose dependencies are all in completed.
func (g *Graph) readySet(resolved, completed map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		if resolved[id] {
			continue
		}
		ok := true
		for _, dep := range g.nodes[id].Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// claimsConflict reports whether a and b share any claimed path.
func claimsConflict(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return true
		}
	}
	return false
}

// admissible filters ready into the subset that can run concurrently
// with already-running claims and with each other, in deterministic
// order, up to budget additional admissions.
func admissible(ready []string, nodes map[string]*Node, runningClaims []string, budget int) []string {
	sort.Strings(ready) // deterministic tie-break independent of map iteration
	var admitted []string
	claimed := append([]string{}, runningClaims...)

	for _, id := range ready {
		if len(admitted) >= budget {
			break
		}
		n := nodes[id]
		if claimsConflict(n.FileClaims, claimed) {
			continue
		}
		admitted = append(admitted, id)
		claimed = append(claimed, n.FileClaims...)
	}
	return admitted
}

// defaultMaxConcurrency mirrors the teacher's CPU-proportional worker
// pool sizing used elsewhere in the corpus for bounded concurrency.
func defaultMaxConcurrency() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}
