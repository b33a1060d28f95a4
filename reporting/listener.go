// Package reporting defines the lifecycle listener interface and the stock
// listeners that consume execution events: the summary accumulator, the tree
// printer, and the dispatcher that fans events out to registered listeners.
package reporting

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/crucible-dev/crucible/types"
)

// RunListener observes execution lifecycle events. Executed nodes get exactly
// one ExecutionStarted/ExecutionFinished pair, started preceding finished,
// child brackets fully nested within their parent's. Nodes skipped by
// cancellation get a single ExecutionSkipped instead of a bracket.
type RunListener interface {
	PlanExecutionStarted(plan *types.TestPlan)
	ExecutionStarted(node *types.TestNode)
	ExecutionSkipped(node *types.TestNode, reason string)
	ExecutionFinished(node *types.TestNode, result types.ExecutionResult)
	PlanExecutionFinished(plan *types.TestPlan)
}

type registeredListener struct {
	listener RunListener
	dropped  bool
}

// Dispatcher fans every event out to its listeners in registration order.
// Emission is serialized: no two events interleave mid-notification. Each
// listener call is isolated; a panicking listener is logged and skipped for
// the remainder of the run, never propagated to the engine or to the other
// listeners.
type Dispatcher struct {
	mu        sync.Mutex
	log       zerolog.Logger
	listeners []*registeredListener
}

// NewDispatcher creates a dispatcher over the given listeners.
func NewDispatcher(log zerolog.Logger, listeners ...RunListener) *Dispatcher {
	d := &Dispatcher{log: log.With().Str("component", "dispatcher").Logger()}
	for _, l := range listeners {
		d.Register(l)
	}
	return d
}

// Register appends a listener. Notification order is registration order.
func (d *Dispatcher) Register(listener RunListener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, &registeredListener{listener: listener})
}

func (d *Dispatcher) broadcast(event string, notify func(RunListener)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, reg := range d.listeners {
		if reg.dropped {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					reg.dropped = true
					d.log.Error().
						Str("event", event).
						Interface("panic", r).
						Msg("listener panicked, dropping it for the remainder of the run")
				}
			}()
			notify(reg.listener)
		}()
	}
}

// PlanExecutionStarted implements RunListener.
func (d *Dispatcher) PlanExecutionStarted(plan *types.TestPlan) {
	d.broadcast("planExecutionStarted", func(l RunListener) { l.PlanExecutionStarted(plan) })
}

// ExecutionStarted implements RunListener.
func (d *Dispatcher) ExecutionStarted(node *types.TestNode) {
	d.broadcast("executionStarted", func(l RunListener) { l.ExecutionStarted(node) })
}

// ExecutionSkipped implements RunListener.
func (d *Dispatcher) ExecutionSkipped(node *types.TestNode, reason string) {
	d.broadcast("executionSkipped", func(l RunListener) { l.ExecutionSkipped(node, reason) })
}

// ExecutionFinished implements RunListener.
func (d *Dispatcher) ExecutionFinished(node *types.TestNode, result types.ExecutionResult) {
	d.broadcast("executionFinished", func(l RunListener) { l.ExecutionFinished(node, result) })
}

// PlanExecutionFinished implements RunListener.
func (d *Dispatcher) PlanExecutionFinished(plan *types.TestPlan) {
	d.broadcast("planExecutionFinished", func(l RunListener) { l.PlanExecutionFinished(plan) })
}

// NoopListener implements RunListener with empty methods. Embed it to build
// listeners that only care about a subset of events.
type NoopListener struct{}

func (NoopListener) PlanExecutionStarted(*types.TestPlan)                     {}
func (NoopListener) ExecutionStarted(*types.TestNode)                         {}
func (NoopListener) ExecutionSkipped(*types.TestNode, string)                 {}
func (NoopListener) ExecutionFinished(*types.TestNode, types.ExecutionResult) {}
func (NoopListener) PlanExecutionFinished(*types.TestPlan)                    {}
