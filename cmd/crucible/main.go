package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	crucible "github.com/crucible-dev/crucible"
	"github.com/crucible-dev/crucible/exitcodes"
	"github.com/crucible-dev/crucible/flags"
	"github.com/crucible-dev/crucible/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "crucible"
	app.Usage = "Catalog-driven test discovery and execution service"
	app.Description = "crucible discovers test units from a catalog and executes them, once or on an interval"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if crucible.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if crucible.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	log := newLogger("info")

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup open telemetry")
	}
	defer otelShutdown()

	// Start healthz and metrics servers
	svc := service.New(log)
	svc.Start(context.Background())
	defer svc.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already mapped the code; anything left is fatal.
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func run(ctx *cli.Context) error {
	log := newLogger(ctx.String(flags.LogLevel.Name))

	cfg, err := crucible.NewConfig(ctx, log, ctx.String(flags.Catalog.Name))
	if err != nil {
		return crucible.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	svc, err := crucible.New(runCtx, cfg, Version, func(error) { cancel() })
	if err != nil {
		return crucible.NewRuntimeError(fmt.Errorf("failed to create crucible: %w", err))
	}

	if err := svc.Start(runCtx); err != nil {
		return err
	}

	// In run-once mode the shutdown callback has already fired; in continuous
	// mode this blocks until a signal arrives.
	<-runCtx.Done()

	if err := svc.Stop(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error stopping crucible")
	}
	return svc.WaitForShutdown(context.Background())
}

// newLogger builds the process logger: human-readable console output plus a
// size-rotated file.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	fileWriter := &lumberjack.Logger{
		Filename:   "crucible.log",
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}

	return zerolog.New(zerolog.MultiLevelWriter(consoleWriter, fileWriter)).
		Level(lvl).
		With().Timestamp().Logger()
}
