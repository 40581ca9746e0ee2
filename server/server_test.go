package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/dispatch"
	"github.com/jonwraymond/toolwrap/observe"
	"github.com/jonwraymond/toolwrap/spec"
)

type stubDriver struct {
	out string
	err error
}

func (d *stubDriver) Kind() string                { return "stub" }
func (d *stubDriver) Start(context.Context) error { return nil }
func (d *stubDriver) Healthy() bool               { return true }
func (d *stubDriver) Stop() error                 { return nil }
func (d *stubDriver) Invoke(context.Context, bind.Invocation, backend.InvokeOptions) (string, error) {
	return d.out, d.err
}

func testServer(t *testing.T, drv backend.Driver) *Server {
	t.Helper()
	sp := &spec.Spec{
		Name: "demo",
		Backend: spec.Backend{
			Type:    spec.KindProcess,
			Process: &spec.ProcessConfig{Command: "demod"},
		},
		Tools: []spec.Tool{
			{
				Name:        "greet",
				Description: "Greets a person",
				Args:        []string{"greet", "{name}"},
				Parameters: []spec.Parameter{
					{Name: "name", Type: spec.TypeString, Required: true},
				},
			},
		},
	}

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	disp, err := dispatch.New(dispatch.Options{
		Spec:     sp,
		Registry: backend.NewRegistry(func(*spec.Spec) (backend.Driver, error) { return drv, nil }),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}
	t.Cleanup(func() { _ = disp.Close() })

	srv, err := New(Options{
		Dispatcher: disp,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestCallTool_Success(t *testing.T) {
	srv := testServer(t, &stubDriver{out: "hello Ada"})

	res := srv.callTool(context.Background(), "greet", json.RawMessage(`{"name":"Ada"}`))
	if res.IsError {
		t.Fatalf("callTool() IsError, content = %q", textOf(t, res))
	}
	if got := textOf(t, res); got != "hello Ada" {
		t.Errorf("content = %q, want %q", got, "hello Ada")
	}
}

func TestCallTool_ValidationErrorInBand(t *testing.T) {
	srv := testServer(t, &stubDriver{})

	res := srv.callTool(context.Background(), "greet", json.RawMessage(`{}`))
	if !res.IsError {
		t.Fatal("callTool() should report a validation failure")
	}
	if got := textOf(t, res); !strings.HasPrefix(got, "validation: ") {
		t.Errorf("content = %q, want validation kind prefix", got)
	}
}

func TestCallTool_MalformedArguments(t *testing.T) {
	srv := testServer(t, &stubDriver{})

	res := srv.callTool(context.Background(), "greet", json.RawMessage(`{not json`))
	if !res.IsError {
		t.Fatal("callTool() should reject malformed arguments")
	}
	if got := textOf(t, res); !strings.Contains(got, "malformed arguments") {
		t.Errorf("content = %q, want malformed arguments message", got)
	}
}

func TestCallTool_BackendErrorInBand(t *testing.T) {
	srv := testServer(t, &stubDriver{err: &backend.BackendError{Status: 503, Body: "overloaded"}})

	res := srv.callTool(context.Background(), "greet", json.RawMessage(`{"name":"Ada"}`))
	if !res.IsError {
		t.Fatal("callTool() should surface backend errors in-band")
	}
	got := textOf(t, res)
	if !strings.HasPrefix(got, "backend_error: ") || !strings.Contains(got, "overloaded") {
		t.Errorf("content = %q, want backend_error kind with body", got)
	}
}

func TestNew_RequiresDispatcher(t *testing.T) {
	if _, err := New(Options{}); err != ErrDispatcherRequired {
		t.Errorf("New() error = %v, want ErrDispatcherRequired", err)
	}
}

func TestNew_DefaultsNameFromSpec(t *testing.T) {
	srv := testServer(t, &stubDriver{})
	if srv.opts.Name != "demo" {
		t.Errorf("Name = %q, want demo", srv.opts.Name)
	}
}
