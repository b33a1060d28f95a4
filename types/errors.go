package types

import (
	"errors"
	"fmt"
)

// StructureError reports a violated invariant of the test unit model:
// duplicate sibling ids, multi-parent attachment, mutation of a sealed
// subtree, or an inconsistent tree handed to the runner. It always indicates
// a bug in a discovery implementation, not a normal runtime condition.
type StructureError struct {
	Msg string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("structure error: %s", e.Msg)
}

// Structuref creates a new StructureError with a formatted message.
func Structuref(format string, args ...any) *StructureError {
	return &StructureError{Msg: fmt.Sprintf(format, args...)}
}

// IsStructureError checks if the error is or wraps a StructureError.
func IsStructureError(err error) bool {
	var structErr *StructureError
	return err != nil && errors.As(err, &structErr)
}
