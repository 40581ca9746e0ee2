// Package backend defines the driver contract for wrapped projects, the
// error taxonomy shared by all drivers, and the registry that maps each
// loaded specification to its single live backend instance.
//
// # Drivers
//
// A [Driver] owns one connection to the wrapped project:
//
//   - backend/process spawns and supervises a long-lived interactive process,
//     exchanging line-oriented requests over stdin/stdout.
//   - backend/httpapi holds a reusable HTTP client bound to a base URL.
//
// # Registry
//
// The [Registry] creates drivers lazily and shares them across concurrent
// tool calls:
//
//	reg := backend.NewRegistry(factory)
//	drv, err := reg.GetOrCreate(ctx, sp)
//	out, err := drv.Invoke(ctx, inv, backend.InvokeOptions{})
//
// A crashed process driver is discarded and a fresh one spawned on the next
// GetOrCreate; HTTP drivers have no crash state beyond per-call errors.
//
// # Errors
//
// Drivers report failures through the package sentinels (ErrStartupTimeout,
// ErrInvocationTimeout, ErrBackendCrashed, ErrConnection, ErrBackendStopped)
// and [*BackendError] for explicit non-2xx responses, so callers can
// classify with errors.Is and errors.As.
package backend
