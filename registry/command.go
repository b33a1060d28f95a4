package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/crucible-dev/crucible/types"
)

// DefaultSkipExitCode is the command exit code treated as a voluntary abort
// (precondition not met), following the automake SKIP convention.
const DefaultSkipExitCode = 77

// maxOutputTail bounds how much command output ends up in a failure cause.
const maxOutputTail = 512

// CommandAction builds a leaf action that runs argv as an external process.
// Exit 0 is a pass, skipExitCode is an abort, any other exit code is a
// failure carrying the tail of the combined output.
func CommandAction(argv []string, skipExitCode int) types.LeafAction {
	if skipExitCode == 0 {
		skipExitCode = DefaultSkipExitCode
	}
	return func(ctx context.Context) error {
		if len(argv) == 0 {
			return types.Failf("empty command")
		}

		var output bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = &output
		cmd.Stderr = &output

		err := cmd.Run()
		if err == nil {
			return nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code == skipExitCode {
				return types.Abortf("command %q skipped with exit code %d", strings.Join(argv, " "), code)
			}
			return types.Failf("command %q exited with code %d: %s", strings.Join(argv, " "), code, outputTail(&output))
		}
		return fmt.Errorf("starting command %q: %w", strings.Join(argv, " "), err)
	}
}

func outputTail(buf *bytes.Buffer) string {
	out := strings.TrimSpace(buf.String())
	if len(out) > maxOutputTail {
		out = "..." + out[len(out)-maxOutputTail:]
	}
	return out
}
