package crucible

import (
	"github.com/crucible-dev/crucible/metrics"
	"github.com/crucible-dev/crucible/reporting"
)

// reportRunMetrics publishes the per-run counters to prometheus.
func reportRunMetrics(summary *reporting.ExecutionSummary) {
	metrics.RecordRun(
		summary.RunID,
		string(summary.RootStatus),
		summary.Tests.Found,
		summary.Tests.Successful,
		summary.Tests.Failed,
		summary.Tests.Skipped,
		summary.Tests.Aborted,
		summary.Duration,
	)
}
