package types

import (
	"errors"
	"fmt"
)

// Status represents the possible outcomes of executing a node.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
	StatusSkipped    Status = "skipped"
)

// String implements the Stringer interface for Status
func (s Status) String() string {
	return string(s)
}

// IsDefect reports whether the status counts as a defect for exit-code and
// aggregation purposes. Aborted runs stopped voluntarily and are not defects,
// but they still fail their enclosing container.
func (s Status) IsDefect() bool {
	return s == StatusFailed
}

// FailureCause carries a message and an optional nested cause chain. It is
// present on a result iff the status is failed or aborted.
type FailureCause struct {
	Message string
	Cause   *FailureCause
}

func (c *FailureCause) String() string {
	if c == nil {
		return ""
	}
	if c.Cause == nil {
		return c.Message
	}
	return fmt.Sprintf("%s: %s", c.Message, c.Cause.String())
}

// CauseFromError converts an error and its wrap chain into a FailureCause
// chain, one cause per unwrap step.
func CauseFromError(err error) *FailureCause {
	if err == nil {
		return nil
	}
	cause := &FailureCause{Message: err.Error()}
	if next := errors.Unwrap(err); next != nil {
		// The outer message usually embeds the inner one; keep only the
		// outer prefix so the chain reads without repetition.
		outer := err.Error()
		inner := next.Error()
		if n := len(outer) - len(inner); n > 2 && outer[n-2:n] == ": " && outer[n:] == inner {
			cause.Message = outer[:n-2]
		}
		cause.Cause = CauseFromError(next)
	}
	return cause
}

// ExecutionResult is the per-node outcome reported to listeners.
type ExecutionResult struct {
	Status  Status
	Failure *FailureCause
}

// Successful returns a successful result.
func Successful() ExecutionResult {
	return ExecutionResult{Status: StatusSuccessful}
}

// Failed returns a failed result with the given cause.
func Failed(cause *FailureCause) ExecutionResult {
	return ExecutionResult{Status: StatusFailed, Failure: cause}
}

// Aborted returns an aborted result with the given cause.
func Aborted(cause *FailureCause) ExecutionResult {
	return ExecutionResult{Status: StatusAborted, Failure: cause}
}

// Skipped returns a skipped result.
func Skipped() ExecutionResult {
	return ExecutionResult{Status: StatusSkipped}
}

// AbortError is the signal a leaf action returns to stop itself voluntarily,
// e.g. when a precondition for this environment is not met. It is reported as
// aborted rather than failed.
type AbortError struct {
	Msg string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted: %s", e.Msg)
}

// Abortf creates an AbortError with a formatted message.
func Abortf(format string, args ...any) error {
	return &AbortError{Msg: fmt.Sprintf(format, args...)}
}

// IsAbort checks if the error is or wraps an AbortError.
func IsAbort(err error) bool {
	var abortErr *AbortError
	return err != nil && errors.As(err, &abortErr)
}

// FailureError is an assertion-style failure signal for leaf actions that
// want to report an expectation mismatch explicitly. Any other non-abort
// error returned from an action is treated the same way.
type FailureError struct {
	Msg string
}

func (e *FailureError) Error() string {
	return e.Msg
}

// Failf creates a FailureError with a formatted message.
func Failf(format string, args ...any) error {
	return &FailureError{Msg: fmt.Sprintf(format, args...)}
}
