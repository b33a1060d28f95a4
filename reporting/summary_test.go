package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/types"
)

func newSummaryFixture(t *testing.T) (*types.TestPlan, *types.TestNode, *types.TestNode, *types.TestNode) {
	t.Helper()
	root := types.NewContainer(types.NewRootID("crucible"), "crucible", "")
	container := types.NewContainer(root.ID.Append(types.SegmentContainer, "unit"), "unit", "")
	require.NoError(t, root.AddChild(container))
	pass := types.NewLeaf(container.ID.Append(types.SegmentLeaf, "pass"), "pass", "", nil)
	fail := types.NewLeaf(container.ID.Append(types.SegmentLeaf, "fail"), "fail", "", nil)
	require.NoError(t, container.AddChild(pass))
	require.NoError(t, container.AddChild(fail))
	plan, err := types.NewTestPlan("crucible", root)
	require.NoError(t, err)
	return plan, container, pass, fail
}

func TestSummaryListenerCounts(t *testing.T) {
	plan, container, pass, fail := newSummaryFixture(t)
	s := NewSummaryListener("run-1")

	s.PlanExecutionStarted(plan)
	s.ExecutionStarted(plan.Root)
	s.ExecutionStarted(container)
	s.ExecutionStarted(pass)
	s.ExecutionFinished(pass, types.Successful())
	s.ExecutionStarted(fail)
	s.ExecutionFinished(fail, types.Failed(&types.FailureCause{Message: "boom"}))
	s.ExecutionFinished(container, types.Failed(&types.FailureCause{Message: "1 child node(s) failed or aborted"}))
	s.ExecutionFinished(plan.Root, types.Failed(&types.FailureCause{Message: "1 child node(s) failed or aborted"}))
	s.PlanExecutionFinished(plan)

	summary := s.Summary()
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, types.StatusFailed, summary.RootStatus)

	// The synthetic root is excluded from every counter, and a container that
	// ran to completion counts as successful even when its aggregate failed.
	assert.Equal(t, Counts{Found: 1, Started: 1, Successful: 1}, summary.Containers)
	assert.Equal(t, Counts{Found: 2, Started: 2, Successful: 1, Failed: 1}, summary.Tests)
	assert.True(t, summary.Defects())
	assert.False(t, summary.EndTime.Before(summary.StartTime))
}

func TestSummaryFailuresListIsAppendOnlyAndFailedOnly(t *testing.T) {
	plan, container, pass, fail := newSummaryFixture(t)
	s := NewSummaryListener("run-2")

	s.PlanExecutionStarted(plan)
	s.ExecutionFinished(pass, types.Aborted(&types.FailureCause{Message: "gave up"}))
	s.ExecutionFinished(fail, types.Failed(&types.FailureCause{Message: "first"}))
	s.ExecutionFinished(container, types.Failed(&types.FailureCause{Message: "2 child node(s) failed or aborted"}))
	s.PlanExecutionFinished(plan)

	summary := s.Summary()
	require.Len(t, summary.Failures, 1, "aborts and container aggregates stay out of the list")
	assert.Equal(t, "fail", summary.Failures[0].DisplayName)
	assert.Equal(t, "first", summary.Failures[0].Cause.Message)
}

func TestSummarySkippedNodesRecorded(t *testing.T) {
	plan, container, pass, fail := newSummaryFixture(t)
	s := NewSummaryListener("run-3")

	s.PlanExecutionStarted(plan)
	s.ExecutionSkipped(plan.Root, "run cancelled")
	s.ExecutionSkipped(container, "run cancelled")
	s.ExecutionSkipped(pass, "run cancelled")
	s.ExecutionSkipped(fail, "run cancelled")
	s.PlanExecutionFinished(plan)

	summary := s.Summary()
	assert.Equal(t, types.StatusSkipped, summary.RootStatus)
	assert.Equal(t, int64(1), summary.Containers.Skipped)
	assert.Equal(t, int64(2), summary.Tests.Skipped)
	assert.Equal(t, types.StatusSkipped, summary.Results[pass.ID.String()].Status)
	assert.False(t, summary.Defects())
}

func TestSummarySnapshotIsIndependent(t *testing.T) {
	plan, _, pass, _ := newSummaryFixture(t)
	s := NewSummaryListener("run-4")
	s.PlanExecutionStarted(plan)
	s.ExecutionFinished(pass, types.Successful())

	snapshot := s.Summary()
	snapshot.Results[pass.ID.String()] = types.Failed(nil)
	snapshot.Failures = append(snapshot.Failures, Failure{NodeID: "bogus"})

	fresh := s.Summary()
	assert.Equal(t, types.StatusSuccessful, fresh.Results[pass.ID.String()].Status)
	assert.Empty(t, fresh.Failures)
}
