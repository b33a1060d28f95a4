// Package logging persists per-run execution artifacts: a streamed event log
// plus summary and failure files written when the run completes.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/rs/zerolog"

	"github.com/crucible-dev/crucible/types"
)

const (
	allLogFilename     = "all.log"
	summaryFilename    = "summary.log"
	failuresFilename   = "failures.log"
	runDirPrefix       = "testrun-"
	logFilePermissions = 0644
	logDirPermissions  = 0755
)

// FileLogger is a run listener that writes execution artifacts under
// <baseDir>/testrun-<runID>/. Failure causes are ANSI-stripped before they
// hit disk: command output routinely carries color escapes.
type FileLogger struct {
	log     zerolog.Logger
	baseDir string
	runID   string
	dir     string

	mu       sync.Mutex
	all      *os.File
	started  map[string]time.Time
	failures []failureEntry
	counts   map[types.Status]int
}

type failureEntry struct {
	nodeID string
	name   string
	cause  string
}

// NewFileLogger creates the run directory and opens the streamed event log.
func NewFileLogger(baseDir, runID string, log zerolog.Logger) (*FileLogger, error) {
	dir := filepath.Join(baseDir, runDirPrefix+runID)
	if err := os.MkdirAll(dir, logDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	all, err := os.OpenFile(filepath.Join(dir, allLogFilename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &FileLogger{
		log:     log.With().Str("component", "filelogger").Logger(),
		baseDir: baseDir,
		runID:   runID,
		dir:     dir,
		all:     all,
		started: make(map[string]time.Time),
		counts:  make(map[types.Status]int),
	}, nil
}

// GetRunID returns the run id the logger was created for.
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// Dir returns the run's artifact directory.
func (l *FileLogger) Dir() string {
	return l.dir
}

func (l *FileLogger) writeLine(format string, args ...any) {
	if _, err := fmt.Fprintf(l.all, format+"\n", args...); err != nil {
		l.log.Error().Err(err).Msg("failed to write event log line")
	}
}

// PlanExecutionStarted implements reporting.RunListener.
func (l *FileLogger) PlanExecutionStarted(plan *types.TestPlan) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine("=== run %s started at %s (%d containers, %d tests)",
		l.runID, time.Now().Format(time.RFC3339), plan.CountContainers()-1, plan.CountLeaves())
}

// ExecutionStarted implements reporting.RunListener.
func (l *FileLogger) ExecutionStarted(node *types.TestNode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started[node.ID.String()] = time.Now()
	l.writeLine("START    %s", node.ID)
}

// ExecutionSkipped implements reporting.RunListener.
func (l *FileLogger) ExecutionSkipped(node *types.TestNode, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if node.IsLeaf() {
		l.counts[types.StatusSkipped]++
	}
	l.writeLine("SKIPPED  %s (%s)", node.ID, reason)
}

// ExecutionFinished implements reporting.RunListener.
func (l *FileLogger) ExecutionFinished(node *types.TestNode, result types.ExecutionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Duration(0)
	if start, ok := l.started[node.ID.String()]; ok {
		elapsed = time.Since(start).Round(time.Millisecond)
	}

	if node.IsLeaf() {
		l.counts[result.Status]++
	}
	l.writeLine("FINISHED %s status=%s duration=%s", node.ID, result.Status, elapsed)

	if result.Failure != nil {
		cause := stripansi.Strip(result.Failure.String())
		l.writeLine("         cause: %s", cause)
		// Container causes only restate descendant defects; the failures
		// artifact carries the failing leaves themselves.
		if result.Status == types.StatusFailed && node.IsLeaf() {
			l.failures = append(l.failures, failureEntry{
				nodeID: node.ID.String(),
				name:   node.DisplayName,
				cause:  cause,
			})
		}
	}
}

// PlanExecutionFinished implements reporting.RunListener: it writes the
// summary and failure artifacts and closes the event log.
func (l *FileLogger) PlanExecutionFinished(*types.TestPlan) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeLine("=== run %s finished at %s", l.runID, time.Now().Format(time.RFC3339))
	if err := l.all.Close(); err != nil {
		l.log.Error().Err(err).Msg("failed to close event log")
	}

	if err := l.writeSummary(); err != nil {
		l.log.Error().Err(err).Msg("failed to write summary file")
	}
	if err := l.writeFailures(); err != nil {
		l.log.Error().Err(err).Msg("failed to write failures file")
	}
}

func (l *FileLogger) writeSummary() error {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", l.runID)
	fmt.Fprintf(&b, "successful: %d\n", l.counts[types.StatusSuccessful])
	fmt.Fprintf(&b, "failed: %d\n", l.counts[types.StatusFailed])
	fmt.Fprintf(&b, "aborted: %d\n", l.counts[types.StatusAborted])
	fmt.Fprintf(&b, "skipped: %d\n", l.counts[types.StatusSkipped])
	return os.WriteFile(filepath.Join(l.dir, summaryFilename), []byte(b.String()), logFilePermissions)
}

func (l *FileLogger) writeFailures() error {
	if len(l.failures) == 0 {
		return nil
	}
	var b strings.Builder
	for _, f := range l.failures {
		fmt.Fprintf(&b, "%s\n  id: %s\n  cause: %s\n\n", f.name, f.nodeID, f.cause)
	}
	return os.WriteFile(filepath.Join(l.dir, failuresFilename), []byte(b.String()), logFilePermissions)
}
