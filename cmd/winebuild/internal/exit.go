package internal

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	ExitFailure = 1 // a build step failed
	ExitUsage   = 2 // the request could not be resolved
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(message string, err error) error {
	return &ExitError{Code: ExitUsage, Message: message, Err: err}
}

func failure(message string, err error) error {
	return &ExitError{Code: ExitFailure, Message: message, Err: err}
}

// GetExitCode returns the exit code for err, ExitFailure unless err
// wraps an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
