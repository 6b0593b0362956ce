package cli

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes of the tool. Scripts and cron jobs rely on them.
const (
	// ExitSuccess means everything requested is healthy.
	ExitSuccess = 0

	// ExitFailure means at least one container failed, or the operation
	// itself failed.
	ExitFailure = 1

	// ExitDegraded means containers failed while another invocation of the
	// tool was running; the failures may be transient restart churn.
	ExitDegraded = 2
)

// ExitError is an error carrying a process exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// HandleExitError prints the error and exits with its code, defaulting to
// ExitFailure for errors without one.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitFailure)
}
