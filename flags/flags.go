// Package flags defines the CLI flags of the crucible binary.
package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "CRUCIBLE"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Catalog = &cli.StringFlag{
		Name:     "catalog",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("CATALOG"),
		Usage:    "Path to the test catalog file (eg. 'catalog.yaml')",
	}
	Select = &cli.StringSliceFlag{
		Name:    "select",
		EnvVars: prefixEnvVars("SELECT"),
		Usage:   "Selector to discover, '<kind>:<value>' (eg. 'namespace:core', 'unit:arithmetic'). May be repeated. Defaults to every namespace in the catalog.",
	}
	Include = &cli.StringSliceFlag{
		Name:    "include",
		EnvVars: prefixEnvVars("INCLUDE"),
		Usage:   "Glob pattern admitting matching container and leaf names. May be repeated.",
	}
	Exclude = &cli.StringSliceFlag{
		Name:    "exclude",
		EnvVars: prefixEnvVars("EXCLUDE"),
		Usage:   "Glob pattern rejecting matching container and leaf names. May be repeated.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVars("TIMEOUT"),
		Usage:   "Default per-leaf timeout; a leaf exceeding it is reported aborted. 0 disables.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: prefixEnvVars("CONCURRENCY"),
		Usage:   "Maximum sibling subtrees executed in parallel. 1 runs serially.",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: prefixEnvVars("LOG_DIR"),
		Usage:   "Directory for per-run artifacts (event log, summary, failures)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
	Progress = &cli.BoolFlag{
		Name:    "progress",
		Value:   true,
		EnvVars: prefixEnvVars("PROGRESS"),
		Usage:   "Print a live tree of execution progress",
	}
)

var requiredFlags = []cli.Flag{
	Catalog,
}

var optionalFlags = []cli.Flag{
	Select,
	Include,
	Exclude,
	RunInterval,
	Timeout,
	Concurrency,
	LogDir,
	LogLevel,
	Progress,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
