package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/crucible-dev/crucible/types"
)

// Tree connectors used by the printer.
const (
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeContinue   = "│   "
	treeIndent     = "    "
)

// Status glyphs for the printed tree.
const (
	glyphPass    = "✓"
	glyphFail    = "✗"
	glyphAbort   = "⚠"
	glyphSkip    = "−"
	glyphRunning = "▶"
)

// TreePrinter renders execution progress as a live tree to a writer. It is a
// pure observer: it never mutates nodes and a write failure never reaches the
// engine.
type TreePrinter struct {
	NoopListener

	mu      sync.Mutex
	w       io.Writer
	started map[string]time.Time
}

// NewTreePrinter creates a printer writing to w.
func NewTreePrinter(w io.Writer) *TreePrinter {
	return &TreePrinter{
		w:       w,
		started: make(map[string]time.Time),
	}
}

// PlanExecutionStarted implements RunListener.
func (p *TreePrinter) PlanExecutionStarted(plan *types.TestPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s (%d containers, %d tests)\n", plan.EngineID, plan.CountContainers()-1, plan.CountLeaves())
}

// ExecutionStarted implements RunListener.
func (p *TreePrinter) ExecutionStarted(node *types.TestNode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started[node.ID.String()] = time.Now()
	if node.IsContainer() && node.Parent != nil {
		fmt.Fprintf(p.w, "%s%s %s\n", treePrefix(node), glyphRunning, node.DisplayName)
	}
}

// ExecutionSkipped implements RunListener.
func (p *TreePrinter) ExecutionSkipped(node *types.TestNode, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if node.Parent == nil {
		return
	}
	fmt.Fprintf(p.w, "%s%s %s (skipped: %s)\n", treePrefix(node), glyphSkip, node.DisplayName, reason)
}

// ExecutionFinished implements RunListener.
func (p *TreePrinter) ExecutionFinished(node *types.TestNode, result types.ExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if node.Parent == nil || node.IsContainer() {
		return
	}

	elapsed := time.Duration(0)
	if start, ok := p.started[node.ID.String()]; ok {
		elapsed = time.Since(start).Round(time.Millisecond)
	}

	line := fmt.Sprintf("%s%s %s (%s)", treePrefix(node), statusGlyph(result.Status), node.DisplayName, elapsed)
	if result.Failure != nil {
		line += fmt.Sprintf(": %s", result.Failure)
	}
	fmt.Fprintln(p.w, line)
}

func statusGlyph(status types.Status) string {
	switch status {
	case types.StatusSuccessful:
		return glyphPass
	case types.StatusFailed:
		return glyphFail
	case types.StatusAborted:
		return glyphAbort
	default:
		return glyphSkip
	}
}

// treePrefix builds the box-drawing prefix for a node from its position among
// its siblings and its ancestors' positions among theirs.
func treePrefix(node *types.TestNode) string {
	if node.Parent == nil {
		return ""
	}

	// Collect the "is last sibling" flags from the root downwards.
	var lasts []bool
	for n := node; n.Parent != nil; n = n.Parent {
		siblings := n.Parent.Children
		lasts = append([]bool{siblings[len(siblings)-1] == n}, lasts...)
	}

	prefix := ""
	for i := 0; i < len(lasts)-1; i++ {
		if lasts[i] {
			prefix += treeIndent
		} else {
			prefix += treeContinue
		}
	}
	if lasts[len(lasts)-1] {
		return prefix + treeLastBranch
	}
	return prefix + treeBranch
}
