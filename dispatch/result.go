package dispatch

import (
	"errors"
	"time"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
)

// Kind classifies a failed call. Kinds are stable strings surfaced to
// protocol clients and recorded as the metric status attribute.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnknownTool       Kind = "unknown_tool"
	KindStartupTimeout    Kind = "startup_timeout"
	KindInvocationTimeout Kind = "invocation_timeout"
	KindBackendCrashed    Kind = "backend_crashed"
	KindBackendError      Kind = "backend_error"
	KindConnection        Kind = "connection"
	KindInternal          Kind = "internal"
)

// CallError is the structured failure surfaced in a [Result]. The message is
// safe to show to a protocol client.
type CallError struct {
	Kind    Kind
	Message string
}

// Error returns kind and message.
func (e *CallError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Result represents the outcome of a single dispatched call.
type Result struct {
	// Tool is the name of the called tool.
	Tool string

	// CallID is the unique ID assigned to this call for log correlation.
	CallID string

	// Output is the backend's textual response. Empty when Err is set.
	Output string

	// Duration is how long the call took, including any lazy backend
	// startup it triggered.
	Duration time.Duration

	// Err is non-nil if the call failed.
	Err *CallError
}

// OK returns true if the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// classify maps a driver or binder error onto the call error taxonomy.
func classify(err error) *CallError {
	var kind Kind
	switch {
	case errors.Is(err, bind.ErrValidation):
		kind = KindValidation
	case errors.Is(err, backend.ErrUnknownTool):
		kind = KindUnknownTool
	case errors.Is(err, backend.ErrStartupTimeout):
		kind = KindStartupTimeout
	case errors.Is(err, backend.ErrInvocationTimeout):
		kind = KindInvocationTimeout
	case errors.Is(err, backend.ErrBackendCrashed), errors.Is(err, backend.ErrBackendStopped):
		kind = KindBackendCrashed
	case errors.Is(err, backend.ErrBackend):
		kind = KindBackendError
	case errors.Is(err, backend.ErrConnection):
		kind = KindConnection
	default:
		kind = KindInternal
	}
	return &CallError{Kind: kind, Message: err.Error()}
}
