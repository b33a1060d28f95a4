// Package runner walks a test plan depth-first, invokes each leaf's bound
// action, and emits lifecycle events to the registered listeners.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/crucible-dev/crucible/reporting"
	"github.com/crucible-dev/crucible/types"
)

// Config holds configuration for creating a new Runner.
type Config struct {
	Plan           *types.TestPlan
	Log            zerolog.Logger
	Listeners      []reporting.RunListener
	DefaultTimeout time.Duration // per-leaf timeout when the leaf sets none; zero disables
	Concurrency    int           // max sibling subtrees in flight; <=1 runs serially
	RunID          string        // pairs the run with externally created artifacts; empty generates one per run
}

// Runner executes one test plan. A single Runner may execute its plan more
// than once; each Run gets a fresh run id and summary.
type Runner struct {
	plan           *types.TestPlan
	log            zerolog.Logger
	listeners      []reporting.RunListener
	defaultTimeout time.Duration
	concurrency    int
	runID          string
	tracer         trace.Tracer

	cancelled atomic.Bool
}

// NewRunner creates a new runner instance.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if !cfg.Plan.Root.Sealed() {
		return nil, types.Structuref("plan root %s is not sealed", cfg.Plan.Root.ID)
	}
	return &Runner{
		plan:           cfg.Plan,
		log:            cfg.Log.With().Str("component", "runner").Logger(),
		listeners:      cfg.Listeners,
		defaultTimeout: cfg.DefaultTimeout,
		concurrency:    cfg.Concurrency,
		runID:          cfg.RunID,
		tracer:         otel.Tracer("crucible/runner"),
	}, nil
}

// Cancel requests early termination. The runner honors it between node
// visits, never mid-leaf: unvisited nodes are reported skipped and open
// brackets are unwound cleanly.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// Run executes the plan and returns the accumulated summary. Leaf failures
// are captured into results and never surface here; the only error a Run can
// return is a StructureError for a plan that is not a well-formed tree.
func (r *Runner) Run(ctx context.Context) (*reporting.ExecutionSummary, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	runID := r.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	r.cancelled.Store(false)

	summary := reporting.NewSummaryListener(runID)
	listeners := append([]reporting.RunListener{summary}, r.listeners...)
	dispatcher := reporting.NewDispatcher(r.log, listeners...)

	r.log.Info().Str("run_id", runID).
		Int("containers", r.plan.CountContainers()-1).
		Int("leaves", r.plan.CountLeaves()).
		Msg("executing plan")

	dispatcher.PlanExecutionStarted(r.plan)
	r.visit(ctx, dispatcher, r.plan.Root)
	dispatcher.PlanExecutionFinished(r.plan)

	result := summary.Summary()
	r.log.Info().Str("run_id", runID).
		Stringer("status", result.RootStatus).
		Int64("tests_failed", result.Tests.Failed).
		Dur("duration", result.Duration).
		Msg("run complete")
	return &result, nil
}

// validate walks the plan iteratively and rejects anything that is not a
// well-formed single-parent tree before any leaf is invoked.
func (r *Runner) validate() error {
	seen := make(map[*types.TestNode]bool)
	var check func(node *types.TestNode) error
	check = func(node *types.TestNode) error {
		if seen[node] {
			return types.Structuref("node %s reachable twice, plan is not a tree", node.ID)
		}
		seen[node] = true
		if node.IsLeaf() && len(node.Children) > 0 {
			return types.Structuref("leaf %s has children", node.ID)
		}
		ids := make(map[string]bool, len(node.Children))
		for _, child := range node.Children {
			if child.Parent != node {
				return types.Structuref("node %s has a stale parent backlink", child.ID)
			}
			if !child.ID.ExtensionOf(node.ID) {
				return types.Structuref("id %s does not extend parent id %s", child.ID, node.ID)
			}
			if ids[child.ID.String()] {
				return types.Structuref("duplicate sibling id %s under %s", child.ID, node.ID)
			}
			ids[child.ID.String()] = true
			if err := check(child); err != nil {
				return err
			}
		}
		return nil
	}
	return check(r.plan.Root)
}

func (r *Runner) cancelRequested(ctx context.Context) bool {
	return ctx.Err() != nil || r.cancelled.Load()
}

// visit executes one subtree and returns its result. The cancellation flag is
// checked at the node boundary: a node not yet started when cancellation is
// requested is skipped together with its whole subtree.
func (r *Runner) visit(ctx context.Context, d *reporting.Dispatcher, node *types.TestNode) types.ExecutionResult {
	if r.cancelRequested(ctx) {
		r.skipSubtree(d, node, "run cancelled")
		return types.Skipped()
	}

	if node.IsLeaf() {
		return r.runLeaf(ctx, d, node)
	}

	d.ExecutionStarted(node)
	ctx, span := r.tracer.Start(ctx, "container "+node.DisplayName)
	span.SetAttributes(attribute.String("crucible.node_id", node.ID.String()))

	results := make([]types.ExecutionResult, len(node.Children))
	if r.concurrency > 1 && len(node.Children) > 1 {
		// Sibling subtrees may execute concurrently: event emission stays
		// serialized by the dispatcher and each subtree keeps its own
		// bracket nesting.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i, child := range node.Children {
			i, child := i, child
			g.Go(func() error {
				results[i] = r.visit(gctx, d, child)
				return nil
			})
		}
		_ = g.Wait() // subtree visits never return errors
	} else {
		for i, child := range node.Children {
			results[i] = r.visit(ctx, d, child)
		}
	}

	agg := aggregate(results)
	span.SetAttributes(attribute.String("crucible.status", agg.Status.String()))
	span.End()
	d.ExecutionFinished(node, agg)
	return agg
}

// aggregate folds child results into a container status. Any failed or
// aborted descendant fails the container, with a synthesized cause naming the
// defect count; a container whose descendants were all skipped is skipped; a
// container with zero children is vacuously successful.
func aggregate(results []types.ExecutionResult) types.ExecutionResult {
	if len(results) == 0 {
		return types.Successful()
	}
	defects := 0
	allSkipped := true
	for _, res := range results {
		switch res.Status {
		case types.StatusFailed, types.StatusAborted:
			defects++
			allSkipped = false
		case types.StatusSkipped:
		default:
			allSkipped = false
		}
	}
	if defects > 0 {
		return types.Failed(&types.FailureCause{
			Message: fmt.Sprintf("%d child node(s) failed or aborted", defects),
		})
	}
	if allSkipped {
		return types.Skipped()
	}
	return types.Successful()
}

func (r *Runner) skipSubtree(d *reporting.Dispatcher, node *types.TestNode, reason string) {
	node.Walk(func(n *types.TestNode) bool {
		d.ExecutionSkipped(n, reason)
		return true
	})
}

func (r *Runner) runLeaf(ctx context.Context, d *reporting.Dispatcher, node *types.TestNode) types.ExecutionResult {
	d.ExecutionStarted(node)
	ctx, span := r.tracer.Start(ctx, "leaf "+node.DisplayName)
	span.SetAttributes(attribute.String("crucible.node_id", node.ID.String()))

	start := time.Now()
	result := r.invoke(ctx, node)

	span.SetAttributes(attribute.String("crucible.status", result.Status.String()))
	span.End()

	evt := r.log.Debug()
	if result.Status == types.StatusFailed {
		evt = r.log.Warn()
	}
	evt.Str("leaf", node.DisplayName).
		Stringer("status", result.Status).
		Dur("duration", time.Since(start)).
		Msg("leaf executed")

	d.ExecutionFinished(node, result)
	return result
}

// invoke runs the leaf's bound action, converting every signaled outcome into
// a result: nil is successful, an Abortf error is aborted, anything else
// (panics included) is failed. An expired timeout synthesizes an aborted
// result instead of hanging the traversal; the action's context is cancelled
// so a well-behaved action can stop early.
func (r *Runner) invoke(ctx context.Context, node *types.TestNode) types.ExecutionResult {
	if node.Action == nil {
		return types.Failed(&types.FailureCause{Message: "no action bound to leaf"})
	}

	timeout := node.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	if timeout == 0 {
		return capture(ctx, node)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- capture(ctx, node)
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(timeout):
		cancel()
		return types.Aborted(&types.FailureCause{
			Message: fmt.Sprintf("timed out after %s", timeout),
		})
	}
}

func capture(ctx context.Context, node *types.TestNode) (result types.ExecutionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.Failed(&types.FailureCause{
				Message: fmt.Sprintf("panic: %v", rec),
			})
		}
	}()

	err := node.Action(ctx)
	switch {
	case err == nil:
		return types.Successful()
	case types.IsAbort(err):
		return types.Aborted(types.CauseFromError(err))
	default:
		return types.Failed(types.CauseFromError(err))
	}
}
