package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend failures. The dispatcher maps these onto the
// structured result taxonomy surfaced to callers.
var (
	// ErrUnknownTool is returned when a call names a tool the specification
	// does not declare.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrStartupTimeout is returned when a process backend's ready signal
	// does not appear within the configured startup timeout.
	ErrStartupTimeout = errors.New("backend startup timed out")

	// ErrInvocationTimeout is returned when a backend produces no response
	// within the call's timeout budget.
	ErrInvocationTimeout = errors.New("backend invocation timed out")

	// ErrBackendCrashed is returned when a process backend exits
	// unexpectedly. The registry respawns the backend on next use.
	ErrBackendCrashed = errors.New("backend process crashed")

	// ErrConnection is returned for HTTP transport failures that are not
	// timeouts. Never retried automatically.
	ErrConnection = errors.New("backend connection failed")

	// ErrBackendStopped is returned for invocations against a backend that
	// has been shut down.
	ErrBackendStopped = errors.New("backend stopped")

	// ErrBackend is the sentinel matched by *BackendError.
	ErrBackend = errors.New("backend returned an error")
)

// BackendError reports an explicit error response from an HTTP backend
// (a non-2xx status). Status and body are passed through to the caller.
type BackendError struct {
	// Status is the HTTP status code.
	Status int

	// Body is the response body, possibly truncated.
	Body string
}

// Error returns the status and body.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// Is reports whether this error matches the target.
// BackendError matches ErrBackend to allow sentinel-style error checking.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}
