package crucible

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/crucible-dev/crucible/reporting"
	"github.com/crucible-dev/crucible/types"
)

// printResultsTable prints the outcome of one run to the console.
func (c *Crucible) printResultsTable(summary *reporting.ExecutionSummary) {
	if c.plan == nil || summary == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Tests", "Successful", "Failed", "Aborted", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Successful", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Aborted", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, container := range c.plan.Root.Children {
		stats := leafStats(container, summary)
		t.AppendRow(table.Row{
			"Unit",
			container.DisplayName,
			"-", // containers do not count as tests
			stats.successful,
			stats.failed,
			stats.aborted,
			stats.skipped,
			getResultString(nodeStatus(container, summary)),
			"",
		})
		appendChildren(t, container, summary, "")
		t.AppendSeparator()
	}

	switch summary.RootStatus {
	case types.StatusSuccessful:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		summary.Tests.Found,
		summary.Tests.Successful,
		summary.Tests.Failed,
		summary.Tests.Aborted,
		summary.Tests.Skipped,
		getResultString(summary.RootStatus),
		"",
	})

	t.Render()
}

// appendChildren writes the rows beneath one container, tree-prefixed.
func appendChildren(t table.Writer, container *types.TestNode, summary *reporting.ExecutionSummary, indent string) {
	for i, child := range container.Children {
		last := i == len(container.Children)-1
		prefix := indent + "├── "
		childIndent := indent + "│   "
		if last {
			prefix = indent + "└── "
			childIndent = indent + "    "
		}

		if child.IsContainer() {
			stats := leafStats(child, summary)
			t.AppendRow(table.Row{
				"Unit",
				prefix + child.DisplayName,
				"-",
				stats.successful,
				stats.failed,
				stats.aborted,
				stats.skipped,
				getResultString(nodeStatus(child, summary)),
				"",
			})
			appendChildren(t, child, summary, childIndent)
			continue
		}

		status := nodeStatus(child, summary)
		t.AppendRow(table.Row{
			"Test",
			prefix + child.DisplayName,
			"1",
			boolToInt(status == types.StatusSuccessful),
			boolToInt(status == types.StatusFailed),
			boolToInt(status == types.StatusAborted),
			boolToInt(status == types.StatusSkipped),
			getResultString(status),
			nodeError(child, summary),
		})
	}
}

type statusCounts struct {
	successful, failed, aborted, skipped int
}

// leafStats tallies the final leaf statuses under node.
func leafStats(node *types.TestNode, summary *reporting.ExecutionSummary) statusCounts {
	var stats statusCounts
	node.Walk(func(n *types.TestNode) bool {
		if !n.IsLeaf() {
			return true
		}
		switch nodeStatus(n, summary) {
		case types.StatusSuccessful:
			stats.successful++
		case types.StatusFailed:
			stats.failed++
		case types.StatusAborted:
			stats.aborted++
		case types.StatusSkipped:
			stats.skipped++
		}
		return true
	})
	return stats
}

func nodeStatus(node *types.TestNode, summary *reporting.ExecutionSummary) types.Status {
	if result, ok := summary.Results[node.ID.String()]; ok {
		return result.Status
	}
	return types.StatusSkipped
}

// nodeError returns the first line of the node's failure cause, if any.
func nodeError(node *types.TestNode, summary *reporting.ExecutionSummary) string {
	result, ok := summary.Results[node.ID.String()]
	if !ok || result.Failure == nil {
		return ""
	}
	msg := result.Failure.String()
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	if len(msg) > 80 {
		return msg[:70] + "..."
	}
	return msg
}

// resultLine builds the one-line run verdict printed after the table.
func resultLine(summary *reporting.ExecutionSummary) string {
	return fmt.Sprintf("Run %s: %s (%d tests: %d successful, %d failed, %d aborted, %d skipped) in %s",
		summary.RunID,
		string(summary.RootStatus),
		summary.Tests.Found,
		summary.Tests.Successful,
		summary.Tests.Failed,
		summary.Tests.Aborted,
		summary.Tests.Skipped,
		formatDuration(summary.Duration),
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a glyphed string for a final status.
func getResultString(status types.Status) string {
	switch status {
	case types.StatusSuccessful:
		return "✓ pass"
	case types.StatusSkipped:
		return "- skip"
	case types.StatusAborted:
		return "⚠ abort"
	default:
		return "✗ fail"
	}
}

// formatDuration formats a duration to seconds with 1 decimal place.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
