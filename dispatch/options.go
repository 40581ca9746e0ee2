package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/backend/httpapi"
	"github.com/jonwraymond/toolwrap/backend/process"
	"github.com/jonwraymond/toolwrap/observe"
	"github.com/jonwraymond/toolwrap/spec"
)

// DefaultTimeout bounds a single tool call, including lazy backend startup.
const DefaultTimeout = 30 * time.Second

// ErrSpecRequired is returned by Options validation.
var ErrSpecRequired = errors.New("dispatch: Spec is required")

// Options configures a Dispatcher.
type Options struct {
	// Spec is the loaded and validated specification to serve.
	// Required.
	Spec *spec.Spec

	// Registry manages backend instances. Optional; if nil, a registry
	// with the standard process/HTTP factory is created.
	Registry *backend.Registry

	// Logger receives call and backend lifecycle events.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics receives call counters and latency observations.
	// Default: observe.DefaultMetrics()
	Metrics *observe.Metrics

	// DefaultTimeout bounds each call when the caller's context carries no
	// tighter deadline.
	// Default: 30s
	DefaultTimeout time.Duration
}

// validate checks that required fields are set.
func (o *Options) validate() error {
	if o.Spec == nil {
		return ErrSpecRequired
	}
	return nil
}

// applyDefaults sets default values for unset optional fields.
func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = observe.DefaultMetrics()
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.Registry == nil {
		o.Registry = backend.NewRegistry(NewFactory(o.Logger, o.Metrics))
	}
}

// NewFactory returns the standard driver factory: command-line backends get
// a process driver, HTTP backends an HTTP driver.
func NewFactory(logger *slog.Logger, metrics *observe.Metrics) backend.Factory {
	return func(sp *spec.Spec) (backend.Driver, error) {
		switch sp.Backend.Type {
		case spec.KindProcess:
			metrics.RecordBackendStart(context.Background(), string(spec.KindProcess))
			return process.New(sp.Backend.Process, process.WithLogger(logger)), nil
		case spec.KindHTTP:
			metrics.RecordBackendStart(context.Background(), string(spec.KindHTTP))
			return httpapi.New(sp.Backend.HTTP, httpapi.WithLogger(logger)), nil
		default:
			return nil, fmt.Errorf("unsupported backend type %q", sp.Backend.Type)
		}
	}
}
