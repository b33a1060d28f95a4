package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/reporting"
	"github.com/crucible-dev/crucible/types"
)

// event is one recorded listener callback.
type event struct {
	kind   string // "started", "finished", "skipped"
	nodeID string
	status types.Status
}

// recorder captures every lifecycle event for assertions.
type recorder struct {
	mu     sync.Mutex
	events []event
	plans  int
	dones  int
}

func (r *recorder) PlanExecutionStarted(*types.TestPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans++
}

func (r *recorder) PlanExecutionFinished(*types.TestPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dones++
}

func (r *recorder) ExecutionStarted(node *types.TestNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "started", nodeID: node.ID.String()})
}

func (r *recorder) ExecutionSkipped(node *types.TestNode, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "skipped", nodeID: node.ID.String()})
}

func (r *recorder) ExecutionFinished(node *types.TestNode, result types.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "finished", nodeID: node.ID.String(), status: result.Status})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

// buildPlan assembles a single-container plan with the given leaf actions,
// keyed by leaf name in insertion order.
func buildPlan(t *testing.T, leaves map[string]types.LeafAction, order []string) *types.TestPlan {
	t.Helper()
	root := types.NewContainer(types.NewRootID("crucible"), "crucible", "")
	container := types.NewContainer(root.ID.Append(types.SegmentContainer, "unit"), "unit", "")
	require.NoError(t, root.AddChild(container))

	for _, name := range order {
		leaf := types.NewLeaf(container.ID.Append(types.SegmentLeaf, name), name, "", leaves[name])
		require.NoError(t, container.AddChild(leaf))
	}

	plan, err := types.NewTestPlan("crucible", root)
	require.NoError(t, err)
	return plan
}

func newRunner(t *testing.T, plan *types.TestPlan, listeners ...reporting.RunListener) *Runner {
	t.Helper()
	r, err := NewRunner(Config{Plan: plan, Log: zerolog.Nop(), Listeners: listeners})
	require.NoError(t, err)
	return r
}

func TestRunMixedOutcomes(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"will_pass": func(context.Context) error { return nil },
		"will_fail": func(context.Context) error { return errors.New("assertion failed") },
	}, []string{"will_pass", "will_fail"})

	rec := &recorder{}
	summary, err := newRunner(t, plan, rec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, summary.RootStatus)
	assert.Equal(t, int64(1), summary.Containers.Found)
	assert.Equal(t, int64(1), summary.Containers.Started)
	assert.Equal(t, int64(1), summary.Containers.Successful, "the container itself ran to completion")
	assert.Equal(t, int64(0), summary.Containers.Failed)
	assert.Equal(t, int64(2), summary.Tests.Found)
	assert.Equal(t, int64(2), summary.Tests.Started)
	assert.Equal(t, int64(1), summary.Tests.Successful)
	assert.Equal(t, int64(1), summary.Tests.Failed)
	assert.True(t, summary.Defects())

	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].NodeID, "will_fail")
	assert.Equal(t, "assertion failed", summary.Failures[0].Cause.Message)

	// The container's own result still carries the failed aggregate.
	containerResult := summary.Results["[engine:crucible]/[container:unit]"]
	assert.Equal(t, types.StatusFailed, containerResult.Status)
	require.NotNil(t, containerResult.Failure)
	assert.Equal(t, "1 child node(s) failed or aborted", containerResult.Failure.Message)

	assert.Equal(t, 1, rec.plans)
	assert.Equal(t, 1, rec.dones)
}

func TestRunEmitsExactlyOneBracketPerNode(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"a": func(context.Context) error { return nil },
		"b": func(context.Context) error { return errors.New("boom") },
	}, []string{"a", "b"})

	rec := &recorder{}
	_, err := newRunner(t, plan, rec).Run(context.Background())
	require.NoError(t, err)

	started := map[string]int{}
	finished := map[string]int{}
	open := map[string]bool{}
	for _, e := range rec.snapshot() {
		switch e.kind {
		case "started":
			started[e.nodeID]++
			open[e.nodeID] = true
		case "finished":
			finished[e.nodeID]++
			assert.True(t, open[e.nodeID], "finished before started for %s", e.nodeID)
			open[e.nodeID] = false
		}
	}
	// Root, container and both leaves: each bracketed exactly once.
	assert.Len(t, started, 4)
	for id, n := range started {
		assert.Equal(t, 1, n, "node %s started more than once", id)
		assert.Equal(t, 1, finished[id], "node %s finished %d times", id, finished[id])
	}
}

func TestRunDepthFirstOrder(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"first":  func(context.Context) error { return nil },
		"second": func(context.Context) error { return nil },
	}, []string{"first", "second"})

	rec := &recorder{}
	_, err := newRunner(t, plan, rec).Run(context.Background())
	require.NoError(t, err)

	var kinds []string
	for _, e := range rec.snapshot() {
		kinds = append(kinds, fmt.Sprintf("%s %s", e.kind, e.nodeID))
	}
	assert.Equal(t, []string{
		"started [engine:crucible]",
		"started [engine:crucible]/[container:unit]",
		"started [engine:crucible]/[container:unit]/[leaf:first]",
		"finished [engine:crucible]/[container:unit]/[leaf:first]",
		"started [engine:crucible]/[container:unit]/[leaf:second]",
		"finished [engine:crucible]/[container:unit]/[leaf:second]",
		"finished [engine:crucible]/[container:unit]",
		"finished [engine:crucible]",
	}, kinds)
}

func TestRunAbortedLeafFailsContainerWithoutDefect(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"will_abort": func(context.Context) error { return types.Abortf("backend unavailable") },
	}, []string{"will_abort"})

	summary, err := newRunner(t, plan).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Tests.Aborted)
	assert.Equal(t, int64(0), summary.Tests.Failed)
	assert.Equal(t, int64(1), summary.Containers.Successful)
	assert.Equal(t, types.StatusFailed, summary.Results["[engine:crucible]/[container:unit]"].Status,
		"an aborted descendant fails its container's aggregate")
	assert.Equal(t, types.StatusFailed, summary.RootStatus)
	assert.False(t, summary.Defects(), "aborts are not defects")
	assert.Empty(t, summary.Failures, "failures list only carries failed leaves")
}

func TestRunPanicIsCapturedAsFailure(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"will_panic": func(context.Context) error { panic("unexpected state") },
		"after":      func(context.Context) error { return nil },
	}, []string{"will_panic", "after"})

	summary, err := newRunner(t, plan).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Tests.Failed)
	assert.Equal(t, int64(1), summary.Tests.Successful, "traversal continues past a panicking leaf")
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Cause.Message, "panic: unexpected state")
}

func TestRunNilActionFails(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"unbound": nil,
	}, []string{"unbound"})

	summary, err := newRunner(t, plan).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Tests.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "no action bound to leaf", summary.Failures[0].Cause.Message)
}

func TestRunTimeoutSynthesizesAbort(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	plan := buildPlan(t, map[string]types.LeafAction{
		"will_hang": func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-release:
				return nil
			}
		},
	}, []string{"will_hang"})

	r, err := NewRunner(Config{
		Plan:           plan,
		Log:            zerolog.Nop(),
		DefaultTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Tests.Aborted)
	result := summary.Results["[engine:crucible]/[container:unit]/[leaf:will_hang]"]
	assert.Equal(t, types.StatusAborted, result.Status)
	require.NotNil(t, result.Failure)
	assert.Contains(t, result.Failure.Message, "timed out after")
}

func TestRunPerLeafTimeoutOverridesDefault(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"quick": func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}, []string{"quick"})
	// Default would expire, the per-leaf override must win.
	plan.FindNode(plan.Root.ID.
		Append(types.SegmentContainer, "unit").
		Append(types.SegmentLeaf, "quick")).Timeout = time.Second

	r, err := NewRunner(Config{
		Plan:           plan,
		Log:            zerolog.Nop(),
		DefaultTimeout: time.Millisecond,
	})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Tests.Successful)
}

func TestCancelSkipsUnvisitedSubtrees(t *testing.T) {
	var r *Runner
	plan := buildPlan(t, map[string]types.LeafAction{
		"trigger": func(context.Context) error {
			r.Cancel()
			return nil
		},
		"never_runs": func(context.Context) error {
			t.Error("leaf executed after cancellation")
			return nil
		},
	}, []string{"trigger", "never_runs"})

	rec := &recorder{}
	r = newRunner(t, plan, rec)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Tests.Started)
	assert.Equal(t, int64(1), summary.Tests.Skipped)

	// The skipped leaf gets a skip notification and no bracket.
	var skipped, startedSkippedLeaf bool
	for _, e := range rec.snapshot() {
		if e.nodeID == "[engine:crucible]/[container:unit]/[leaf:never_runs]" {
			switch e.kind {
			case "skipped":
				skipped = true
			case "started", "finished":
				startedSkippedLeaf = true
			}
		}
	}
	assert.True(t, skipped)
	assert.False(t, startedSkippedLeaf, "skipped nodes must not receive a started/finished bracket")
}

func TestCancelledContextSkipsEverything(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"leaf": func(context.Context) error {
			t.Error("leaf executed under a cancelled context")
			return nil
		},
	}, []string{"leaf"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newRunner(t, plan).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, summary.RootStatus)
	assert.Equal(t, int64(0), summary.Tests.Started)
	assert.Equal(t, int64(1), summary.Tests.Skipped)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		results []types.ExecutionResult
		want    types.Status
	}{
		{
			name: "empty container is vacuously successful",
			want: types.StatusSuccessful,
		},
		{
			name:    "all successful",
			results: []types.ExecutionResult{types.Successful(), types.Successful()},
			want:    types.StatusSuccessful,
		},
		{
			name:    "one failed fails the container",
			results: []types.ExecutionResult{types.Successful(), types.Failed(nil)},
			want:    types.StatusFailed,
		},
		{
			name:    "one aborted fails the container",
			results: []types.ExecutionResult{types.Successful(), types.Aborted(nil)},
			want:    types.StatusFailed,
		},
		{
			name:    "all skipped is skipped",
			results: []types.ExecutionResult{types.Skipped(), types.Skipped()},
			want:    types.StatusSkipped,
		},
		{
			name:    "skipped plus successful is successful",
			results: []types.ExecutionResult{types.Skipped(), types.Successful()},
			want:    types.StatusSuccessful,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregate(tt.results)
			assert.Equal(t, tt.want, got.Status)
			if tt.want == types.StatusFailed {
				require.NotNil(t, got.Failure, "failed aggregates carry a cause")
			} else {
				assert.Nil(t, got.Failure)
			}
		})
	}
}

func TestRunRejectsMalformedTree(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"a": func(context.Context) error { return nil },
	}, []string{"a"})

	// Corrupt the backlink after sealing; Run must catch it before invoking
	// anything.
	leaf := plan.FindNode(plan.Root.ID.
		Append(types.SegmentContainer, "unit").
		Append(types.SegmentLeaf, "a"))
	require.NotNil(t, leaf)
	leaf.Parent = plan.Root

	summary, err := newRunner(t, plan).Run(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsStructureError(err))
	assert.Nil(t, summary)
}

func TestRunConcurrentSiblings(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	action := func(context.Context) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	root := types.NewContainer(types.NewRootID("crucible"), "crucible", "")
	for _, name := range []string{"u1", "u2", "u3"} {
		container := types.NewContainer(root.ID.Append(types.SegmentContainer, name), name, "")
		require.NoError(t, root.AddChild(container))
		leaf := types.NewLeaf(container.ID.Append(types.SegmentLeaf, "work"), "work", "", action)
		require.NoError(t, container.AddChild(leaf))
	}
	plan, err := types.NewTestPlan("crucible", root)
	require.NoError(t, err)

	r, err := NewRunner(Config{Plan: plan, Log: zerolog.Nop(), Concurrency: 3})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Tests.Successful)
	assert.Equal(t, types.StatusSuccessful, summary.RootStatus)
	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, maxInFlight, 1, "siblings should overlap with concurrency > 1")
}

func TestListenerPanicDoesNotAffectResults(t *testing.T) {
	plan := buildPlan(t, map[string]types.LeafAction{
		"a": func(context.Context) error { return nil },
		"b": func(context.Context) error { return nil },
	}, []string{"a", "b"})

	bad := &panickingListener{}
	rec := &recorder{}
	summary, err := newRunner(t, plan, bad, rec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccessful, summary.RootStatus)
	assert.Equal(t, int64(2), summary.Tests.Successful)
	assert.Equal(t, 1, rec.dones, "well-behaved listeners keep receiving events")
	assert.LessOrEqual(t, bad.calls, 1, "a panicking listener is dropped for the rest of the run")
}

type panickingListener struct {
	reporting.NoopListener
	calls int
}

func (p *panickingListener) ExecutionStarted(*types.TestNode) {
	p.calls++
	panic("listener bug")
}
