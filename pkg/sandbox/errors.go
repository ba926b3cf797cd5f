package sandbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be > 0)")

	// ErrInvalidOutputLimit is returned when the output limit is invalid
	ErrInvalidOutputLimit = errors.New("invalid output limit (must be >= 0)")

	// ErrInvalidDenyPattern is returned when a deny pattern does not compile
	ErrInvalidDenyPattern = errors.New("invalid deny pattern")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrCommandBlocked is returned when a command matches a deny pattern
	ErrCommandBlocked = errors.New("command blocked")

	// ErrFilesystemAccessDenied is returned when filesystem access is denied
	ErrFilesystemAccessDenied = errors.New("filesystem access denied")

	// ErrEmptyCommand is returned when no command is given
	ErrEmptyCommand = errors.New("command is required")
)

// TimeoutError reports the limit an execution exceeded
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v after %s", ErrExecutionTimeout, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrExecutionTimeout
}
