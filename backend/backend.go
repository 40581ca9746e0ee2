package backend

import (
	"context"

	"github.com/jonwraymond/toolwrap/bind"
)

// Driver owns one live connection to a wrapped project: a spawned interactive
// process or an HTTP client bound to a base endpoint. One driver serves all
// tools of its specification.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use. Process
//   drivers serialize exchanges internally; HTTP drivers run them concurrently.
// - Context: Start and Invoke must honor cancellation/deadlines.
// - Errors: use the sentinels in this package (ErrStartupTimeout,
//   ErrInvocationTimeout, ErrBackendCrashed, ErrConnection, ErrBackend)
//   so callers can classify with errors.Is/errors.As.
// - Lifecycle: Stop must release all OS resources on every path and must be
//   safe to call more than once.
type Driver interface {
	// Kind returns the backend kind ("commandline" or "http").
	Kind() string

	// Start brings the backend to a ready state. For process backends this
	// spawns the executable and waits for the ready signal; for HTTP
	// backends it is cheap. Start is called at most once per driver.
	Start(ctx context.Context) error

	// Invoke performs one exchange with the backend and returns the raw
	// payload (process stdout lines, or an HTTP response body).
	Invoke(ctx context.Context, inv bind.Invocation, opts InvokeOptions) (string, error)

	// Healthy reports whether the driver can still serve invocations.
	// A crashed or stopped driver reports false and is replaced by the
	// registry on next use.
	Healthy() bool

	// Stop tears the backend down and releases its resources.
	Stop() error
}

// InvokeOptions carries per-tool invocation settings that are not part of the
// rendered parameters.
type InvokeOptions struct {
	// Terminator, when non-empty, ends a process backend's response at the
	// first output line equal to it (the terminator line is excluded from
	// the payload). Empty selects the silence-timeout policy. HTTP drivers
	// ignore it.
	Terminator string
}
