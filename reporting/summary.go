package reporting

import (
	"sync"
	"time"

	"github.com/crucible-dev/crucible/types"
)

// Counts tracks per-kind execution counters. All counters are monotonically
// non-decreasing during a single run.
type Counts struct {
	Found      int64
	Started    int64
	Skipped    int64
	Aborted    int64
	Successful int64
	Failed     int64
}

// Failure is one entry of the summary's ordered, append-only failure list.
type Failure struct {
	NodeID      string
	DisplayName string
	Cause       *types.FailureCause
}

// ExecutionSummary is the aggregated outcome of one execution run. The
// engine's synthetic root container is not counted; the counters cover the
// discovered containers and leaves only.
type ExecutionSummary struct {
	RunID      string
	Containers Counts
	Tests      Counts
	Failures   []Failure
	RootStatus types.Status
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration

	// Results maps node ids (canonical string form) to their final result,
	// skipped nodes included. Kept for formatters and file sinks.
	Results map[string]types.ExecutionResult
}

// Defects reports whether any test failed.
func (s ExecutionSummary) Defects() bool {
	return s.Tests.Failed > 0
}

// SummaryListener accumulates an ExecutionSummary from lifecycle events.
// Counter updates are lock-protected, so it is safe to use under a runner
// executing sibling subtrees concurrently.
type SummaryListener struct {
	mu      sync.Mutex
	summary ExecutionSummary
}

// NewSummaryListener creates a summary listener for one run.
func NewSummaryListener(runID string) *SummaryListener {
	return &SummaryListener{
		summary: ExecutionSummary{
			RunID:   runID,
			Results: make(map[string]types.ExecutionResult),
		},
	}
}

func isRoot(node *types.TestNode) bool {
	return node.Parent == nil
}

// PlanExecutionStarted implements RunListener: it records the found counts
// from the plan before any node executes.
func (s *SummaryListener) PlanExecutionStarted(plan *types.TestPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.StartTime = time.Now()
	s.summary.Containers.Found = int64(plan.CountContainers() - 1) // root excluded
	s.summary.Tests.Found = int64(plan.CountLeaves())
}

// ExecutionStarted implements RunListener.
func (s *SummaryListener) ExecutionStarted(node *types.TestNode) {
	if isRoot(node) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if node.IsLeaf() {
		s.summary.Tests.Started++
	} else {
		s.summary.Containers.Started++
	}
}

// ExecutionSkipped implements RunListener.
func (s *SummaryListener) ExecutionSkipped(node *types.TestNode, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Results[node.ID.String()] = types.Skipped()
	if isRoot(node) {
		s.summary.RootStatus = types.StatusSkipped
		return
	}
	if node.IsLeaf() {
		s.summary.Tests.Skipped++
	} else {
		s.summary.Containers.Skipped++
	}
}

// ExecutionFinished implements RunListener.
func (s *SummaryListener) ExecutionFinished(node *types.TestNode, result types.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Results[node.ID.String()] = result
	if isRoot(node) {
		s.summary.RootStatus = result.Status
		return
	}

	if node.IsLeaf() {
		switch result.Status {
		case types.StatusSuccessful:
			s.summary.Tests.Successful++
		case types.StatusFailed:
			s.summary.Tests.Failed++
		case types.StatusAborted:
			s.summary.Tests.Aborted++
		case types.StatusSkipped:
			s.summary.Tests.Skipped++
		}
		if result.Status == types.StatusFailed && result.Failure != nil {
			s.summary.Failures = append(s.summary.Failures, Failure{
				NodeID:      node.ID.String(),
				DisplayName: node.DisplayName,
				Cause:       result.Failure,
			})
		}
		return
	}

	// A container's finished status aggregates its descendants; the counter
	// tracks the container's own execution, which succeeded whenever it ran
	// to completion. Descendant defects are already counted under Tests.
	if result.Status == types.StatusSkipped {
		s.summary.Containers.Skipped++
	} else {
		s.summary.Containers.Successful++
	}
}

// PlanExecutionFinished implements RunListener.
func (s *SummaryListener) PlanExecutionFinished(*types.TestPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.EndTime = time.Now()
	s.summary.Duration = s.summary.EndTime.Sub(s.summary.StartTime)
}

// Summary returns a snapshot of the accumulated summary.
func (s *SummaryListener) Summary() ExecutionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.summary
	snapshot.Failures = make([]Failure, len(s.summary.Failures))
	copy(snapshot.Failures, s.summary.Failures)
	snapshot.Results = make(map[string]types.ExecutionResult, len(s.summary.Results))
	for id, res := range s.summary.Results {
		snapshot.Results[id] = res
	}
	return snapshot
}
