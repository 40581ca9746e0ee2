// Package httpapi implements the HTTP backend driver: a reusable client
// bound to a base URL that maps tool calls onto HTTP requests.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/spec"
)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger for request events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClient replaces the HTTP client. Used by tests.
func WithClient(client *http.Client) Option {
	return func(d *Driver) {
		if client != nil {
			d.client = client
		}
	}
}

// Driver maps tool invocations onto HTTP requests against one base URL.
// Unlike a process backend it has no interactive session, so calls overlap
// freely and there is no crash state beyond per-call errors.
type Driver struct {
	cfg    *spec.HTTPConfig
	logger *slog.Logger
	client *http.Client
	base   *url.URL

	stopped atomic.Bool
}

var _ backend.Driver = (*Driver)(nil)

// New creates an unstarted driver for cfg.
func New(cfg *spec.HTTPConfig, opts ...Option) *Driver {
	d := &Driver{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: cfg.TimeoutOrDefault()}
	}
	return d
}

// Kind returns the backend kind.
func (d *Driver) Kind() string { return string(spec.KindHTTP) }

// Start parses and pins the base URL. No connection is made: the backend is
// a remote service whose availability is observed per call.
func (d *Driver) Start(context.Context) error {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base URL %q: %w", d.cfg.BaseURL, err)
	}
	d.base = base
	return nil
}

// Healthy reports whether the driver accepts invocations.
func (d *Driver) Healthy() bool { return !d.stopped.Load() && d.base != nil }

// Invoke performs one HTTP exchange. A 2xx response yields the body; a
// non-2xx response yields a [*backend.BackendError] carrying status and
// body; transport failures are classified as timeout or connection errors.
func (d *Driver) Invoke(ctx context.Context, inv bind.Invocation, _ backend.InvokeOptions) (string, error) {
	httpInv, ok := inv.(*bind.HTTPInvocation)
	if !ok {
		return "", fmt.Errorf("http driver: invalid invocation type %T", inv)
	}
	if d.stopped.Load() {
		return "", backend.ErrBackendStopped
	}

	req, err := d.buildRequest(ctx, httpInv)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err)
	}

	d.logger.Debug("backend http exchange",
		"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &backend.BackendError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// Stop marks the driver stopped and releases pooled connections.
func (d *Driver) Stop() error {
	d.stopped.Store(true)
	d.client.CloseIdleConnections()
	return nil
}

func (d *Driver) buildRequest(ctx context.Context, inv *bind.HTTPInvocation) (*http.Request, error) {
	u := *d.base
	u.Path = joinPath(d.base.Path, inv.Path)
	u.RawQuery = inv.Query.Encode()

	var body io.Reader
	if inv.Body != nil {
		payload, err := json.Marshal(inv.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, inv.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Spec-level default headers first, then per-tool headers on top.
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range inv.Header {
		req.Header.Set(k, v)
	}
	if inv.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	joined := path.Join(base, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// classifyTransport maps a client error onto the backend error taxonomy:
// deadline and timeout failures are invocation timeouts, everything else is
// a connection failure. Neither is retried.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", backend.ErrInvocationTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", backend.ErrInvocationTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", backend.ErrConnection, err)
}
