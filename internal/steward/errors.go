package steward

import "errors"

// ErrorCode represents specific error conditions the caller may want to
// distinguish from plain I/O failures.
type ErrorCode string

const (
	// ErrorCodeImageNotFound indicates that no image for the container
	// exists on the local system. Recoverable: callers may skip-and-warn.
	ErrorCodeImageNotFound ErrorCode = "IMAGE_NOT_FOUND"

	// ErrorCodeContainerNotFound indicates that the requested container
	// instance is unknown to the container engine.
	ErrorCodeContainerNotFound ErrorCode = "CONTAINER_NOT_FOUND"

	// ErrorCodeUnknownContainer indicates a selector named a container that
	// does not appear in the configuration. Fatal at startup.
	ErrorCodeUnknownContainer ErrorCode = "UNKNOWN_CONTAINER"

	// ErrorCodeAlreadyRunning indicates another live instance of the tool
	// holds the lock. Fatal for mutating invocations.
	ErrorCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"

	// ErrorCodeUnmanagedInstance indicates a live container was traced to a
	// managed image but not to any tracked instance record. The tool never
	// silently adopts or destroys containers it does not recognize.
	ErrorCodeUnmanagedInstance ErrorCode = "UNMANAGED_INSTANCE"

	// ErrorCodeContractViolation indicates a programming error, such as
	// starting a container that is already reported live.
	ErrorCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"

	// ErrorCodeDataIntegrity indicates the container engine returned data
	// the tool cannot safely reason past, e.g. a finish time before the
	// creation time.
	ErrorCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"
)

// Error is a domain-specific error carrying a machine-checkable code.
type Error struct {
	// Code is the specific error condition that occurred.
	Code ErrorCode

	// Message provides human-readable details about the error.
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsCode reports whether err is (or wraps) a domain error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Code == code
}
