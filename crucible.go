// Package crucible wires the catalog registry, discovery engine and runner
// into a long-lived service that executes test plans on a schedule.
package crucible

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/crucible-dev/crucible/discovery"
	"github.com/crucible-dev/crucible/exitcodes"
	"github.com/crucible-dev/crucible/logging"
	"github.com/crucible-dev/crucible/registry"
	"github.com/crucible-dev/crucible/reporting"
	"github.com/crucible-dev/crucible/runner"
	"github.com/crucible-dev/crucible/types"
)

// Crucible discovers units from a catalog and executes them, once or on an
// interval.
type Crucible struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	engine   *discovery.Engine
	plan     *types.TestPlan
	result   *reporting.ExecutionSummary

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Crucible, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug().
		Str("catalog", config.CatalogFile).
		Dur("runInterval", config.RunInterval).
		Bool("runOnce", config.RunOnce).
		Msg("Creating crucible service")

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		CatalogFile:    config.CatalogFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	engine, err := discovery.NewEngine(discovery.Config{
		EngineID: discovery.DefaultEngineID,
		Source:   reg,
		Log:      config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery engine: %w", err)
	}
	config.Log.Info().Msg("crucible.New: created registry and discovery engine")

	return &Crucible{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		engine:           engine,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the tests periodically at the configured interval.
func (c *Crucible) Start(ctx context.Context) error {
	// Recover panics so runtime errors still exit with code 2.
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error().Interface("error", r).Msg("Runtime error occurred")
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	c.ctx = ctx
	c.done = make(chan struct{})
	c.running.Store(true)

	if c.config.RunOnce {
		c.config.Log.Info().Msg("Starting crucible in run-once mode")
	} else {
		c.config.Log.Info().Dur("interval", c.config.RunInterval).Msg("Starting crucible in continuous mode")
	}

	// Run tests immediately on startup
	err := c.runTests()
	if err != nil {
		// Discovery and setup failures are runtime errors, not test failures.
		c.config.Log.Error().Err(err).Msg("Runtime error running tests")
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if c.config.RunOnce {
		c.config.Log.Info().Msg("Tests completed, exiting (run-once mode)")

		if c.result != nil && c.result.Defects() {
			c.config.Log.Warn().Msg("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(resultLine(c.result))
		}

		// Only needed in run-once mode with all tests passing.
		go func() {
			c.shutdownCallback(nil)
		}()
		return nil
	}

	// Start a goroutine for periodic test execution
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.config.Log.Debug().Dur("interval", c.config.RunInterval).Msg("Starting periodic test runner goroutine")

		for {
			select {
			case <-time.After(c.config.RunInterval):
				if !c.running.Load() {
					c.config.Log.Debug().Msg("Service stopped, exiting periodic test runner")
					return
				}

				c.config.Log.Info().Msg("Running periodic tests")
				if err := c.runTests(); err != nil {
					c.config.Log.Error().Err(err).Msg("Error running periodic tests")
				}

			case <-c.done:
				c.config.Log.Debug().Msg("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				c.config.Log.Debug().Msg("Context canceled, stopping periodic test runner")
				c.running.Store(false)
				return
			}
		}
	}()
	c.config.Log.Debug().Msg("crucible started successfully")
	return nil
}

// buildRequest translates the configured selectors and glob patterns into a
// discovery request. With no selectors configured, every catalog namespace is
// selected.
func (c *Crucible) buildRequest() (discovery.Request, error) {
	raw := c.config.Selectors
	if len(raw) == 0 {
		for _, ns := range c.registry.Namespaces() {
			raw = append(raw, fmt.Sprintf("%s:%s", discovery.SelectNamespace, ns))
		}
	}
	selectors, err := discovery.ParseSelectors(raw)
	if err != nil {
		return discovery.Request{}, err
	}

	var filters []discovery.Filter
	if len(c.config.Include) > 0 {
		filters = append(filters, discovery.IncludeNames(discovery.FilterAll, c.config.Include...))
	}
	if len(c.config.Exclude) > 0 {
		filters = append(filters, discovery.ExcludeNames(discovery.FilterAll, c.config.Exclude...))
	}

	return discovery.Request{Selectors: selectors, Filters: filters}, nil
}

// runTests discovers a plan and executes it, recording results and metrics.
func (c *Crucible) runTests() error {
	req, err := c.buildRequest()
	if err != nil {
		return NewRuntimeError(err)
	}

	plan, err := c.engine.Discover(req)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("discovery failed: %w", err))
	}
	c.plan = plan
	c.config.Log.Info().
		Int("containers", plan.CountContainers()-1).
		Int("tests", plan.CountLeaves()).
		Msg("Discovered test plan")

	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(c.config.LogDir, runID, c.config.Log)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}

	listeners := []reporting.RunListener{fileLogger}
	if c.config.ShowProgress {
		listeners = append(listeners, reporting.NewTreePrinter(os.Stdout))
	}

	testRunner, err := runner.NewRunner(runner.Config{
		Plan:           plan,
		Log:            c.config.Log,
		Listeners:      listeners,
		DefaultTimeout: c.config.DefaultTimeout,
		Concurrency:    c.config.Concurrency,
		RunID:          runID,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	summary, err := testRunner.Run(c.ctx)
	if err != nil {
		c.config.Log.Error().Err(err).Msg("Runtime error running tests")
		return NewRuntimeError(err)
	}
	c.result = summary

	c.printResultsTable(summary)
	fmt.Println(resultLine(summary))
	reportRunMetrics(summary)

	c.config.Log.Info().
		Str("run_id", summary.RunID).
		Str("status", string(summary.RootStatus)).
		Str("log_dir", fileLogger.Dir()).
		Msg("Test run completed")
	return nil
}

// Stop stops the crucible service.
func (c *Crucible) Stop(ctx context.Context) error {
	c.config.Log.Info().Msg("Stopping crucible")

	if !c.running.Load() {
		c.config.Log.Debug().Msg("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new test runs
	c.running.Store(false)

	c.config.Log.Debug().Msg("Sending done signal to goroutines")
	close(c.done)

	c.config.Log.Info().Msg("crucible stopped successfully")
	return nil
}

// Stopped returns true if the crucible service is stopped.
func (c *Crucible) Stopped() bool {
	return !c.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// Useful in tests to ensure complete cleanup before the next case.
func (c *Crucible) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.config.Log.Debug().Msg("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		c.config.Log.Warn().Err(ctx.Err()).Msg("Timed out waiting for goroutines to terminate")
		return ctx.Err()
	}
}
