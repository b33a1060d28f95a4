package crucible

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/crucible-dev/crucible/flags"
)

// Config holds the application configuration
type Config struct {
	CatalogFile    string
	Selectors      []string      // Raw selectors ('<kind>:<value>'); empty selects every catalog namespace
	Include        []string      // Glob patterns admitting container/leaf names
	Exclude        []string      // Glob patterns rejecting container/leaf names
	RunInterval    time.Duration // Interval between test runs
	RunOnce        bool          // Indicates if the service should exit after one test run
	DefaultTimeout time.Duration // Default timeout for individual leaves, can be overridden per leaf
	Concurrency    int           // Maximum sibling subtrees executed in parallel (1 = serial)
	LogDir         string        // Directory to store run artifacts
	ShowProgress   bool          // Whether to print a live execution tree
	Log            zerolog.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log zerolog.Logger, catalogFile string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	absCatalog, err := filepath.Abs(catalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for catalog '%s': %w", catalogFile, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	return &Config{
		CatalogFile:    absCatalog,
		Selectors:      ctx.StringSlice(flags.Select.Name),
		Include:        ctx.StringSlice(flags.Include.Name),
		Exclude:        ctx.StringSlice(flags.Exclude.Name),
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		DefaultTimeout: ctx.Duration(flags.Timeout.Name),
		Concurrency:    concurrency,
		LogDir:         logDir,
		ShowProgress:   ctx.Bool(flags.Progress.Name),
		Log:            log,
	}, nil
}
