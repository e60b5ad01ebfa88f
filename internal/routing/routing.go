// Package routing implements the Router & Provider Interface (spec.md
// §4.9): a stateless mapping from task to model id, and a registry of
// Provider implementations the executor calls through.
package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Aman-CERP/agentcore/internal/coreerr"
)

// Decision is the router's model-selection verdict for one task
// (spec.md §4.9: "Router.route(task) → Decision{model_id, rationale}").
type Decision struct {
	ModelID   string
	Rationale string
}

// Response is what a Provider returns for one generate call.
type Response struct {
	Text       string
	Tokens     int
	Confidence float64
	LatencyMS  int64
}

// Provider is an external model backend. Implementations are stateless
// from the core's view (spec.md §4.9); the core only ever calls through
// this interface.
type Provider interface {
	Generate(ctx context.Context, query string, context string) (Response, error)
	IsAvailable(ctx context.Context) bool
	EstimateCost(context string) float64
}

// Task is the minimal shape routing needs from a task to make a decision;
// internal/task.Task satisfies it.
type Task interface {
	Difficulty() int
	Description() string
}

// Router picks a model id for a task and holds the provider registry
// (spec.md §4.9: "registry is a map from model id to provider").
type Router struct {
	providers map[string]Provider
	rules     []rule
}

type rule struct {
	name      string
	matches   func(Task) bool
	modelID   string
	rationale string
}

// New constructs a Router with no providers and the default
// difficulty-tiered routing rules, evaluated in order.
func New() *Router {
	return &Router{
		providers: make(map[string]Provider),
		rules: []rule{
			{
				name:      "trivial",
				matches:   func(t Task) bool { return t.Difficulty() <= 2 },
				modelID:   "small",
				rationale: "low difficulty, route to the cheapest tier",
			},
			{
				name:      "standard",
				matches:   func(t Task) bool { return t.Difficulty() <= 6 },
				modelID:   "standard",
				rationale: "moderate difficulty, route to the standard tier",
			},
			{
				name:      "hard",
				matches:   func(t Task) bool { return true },
				modelID:   "large",
				rationale: "high difficulty, route to the largest available tier",
			},
		},
	}
}

// Register adds or replaces the provider for modelID.
func (r *Router) Register(modelID string, p Provider) {
	r.providers[modelID] = p
}

// Len reports how many providers are registered, letting a caller detect
// an empty registry before routing ever gets attempted.
func (r *Router) Len() int {
	return len(r.providers)
}

// Provider returns the registered provider for modelID, letting a caller
// separate route selection (terminal on failure) from the subsequent
// generate call (whose failure a caller such as the executor's
// assessment stage may choose to treat as recoverable).
func (r *Router) Provider(modelID string) (Provider, bool) {
	p, ok := r.providers[modelID]
	return p, ok
}

// Route selects a model id for task by walking the rule list in order and
// falling back to the next available provider if the first choice is
// unavailable, per spec.md §7's ProviderUnavailable handling.
func (r *Router) Route(ctx context.Context, t Task) (Decision, error) {
	for _, rule := range r.rules {
		if !rule.matches(t) {
			continue
		}
		if p, ok := r.providers[rule.modelID]; ok && p.IsAvailable(ctx) {
			return Decision{ModelID: rule.modelID, Rationale: rule.rationale}, nil
		}
	}

	// Every rule's preferred model was unavailable; fall back to any
	// available registered provider, cheapest-estimated first.
	if fallback, ok := r.cheapestAvailable(ctx); ok {
		return Decision{ModelID: fallback, Rationale: "preferred tier unavailable, routed to fallback provider"}, nil
	}

	return Decision{}, coreerr.New(coreerr.Executor, coreerr.KindProviderUnavail, "no provider available for task", nil)
}

func (r *Router) cheapestAvailable(ctx context.Context) (string, bool) {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if r.providers[id].IsAvailable(ctx) {
			return id, true
		}
	}
	return "", false
}

// Generate routes the task and invokes the selected provider, retrying
// against the next-cheapest available provider once if the first call
// fails (spec.md §5's generate suspension point; spec.md §7's
// ProviderUnavailable is retryable at the router level, not the task
// level).
func (r *Router) Generate(ctx context.Context, t Task, query, ctxText string) (Response, Decision, error) {
	decision, err := r.Route(ctx, t)
	if err != nil {
		return Response{}, Decision{}, err
	}

	p, ok := r.providers[decision.ModelID]
	if !ok {
		return Response{}, decision, coreerr.ProviderUnavailable(decision.ModelID)
	}

	start := time.Now()
	resp, err := p.Generate(ctx, query, ctxText)
	if err != nil {
		return Response{}, decision, coreerr.RoutingFailed(fmt.Sprintf("provider %q generate failed", decision.ModelID), err)
	}
	if resp.LatencyMS == 0 {
		resp.LatencyMS = time.Since(start).Milliseconds()
	}
	return resp, decision, nil
}
