package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonwraymond/tooldiscovery/tooldoc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/observe"
	"github.com/jonwraymond/toolwrap/spec"
)

// stubDriver lets tests script driver behavior without spawning anything.
type stubDriver struct {
	out        string
	err        error
	healthy    bool
	terminator string
}

func (d *stubDriver) Kind() string                  { return "stub" }
func (d *stubDriver) Start(context.Context) error   { d.healthy = true; return nil }
func (d *stubDriver) Healthy() bool                 { return d.healthy }
func (d *stubDriver) Stop() error                   { d.healthy = false; return nil }
func (d *stubDriver) Invoke(_ context.Context, _ bind.Invocation, opts backend.InvokeOptions) (string, error) {
	d.terminator = opts.Terminator
	return d.out, d.err
}

func testSpec() *spec.Spec {
	return &spec.Spec{
		Name:        "clock",
		Description: "A clock service",
		Backend: spec.Backend{
			Type:    spec.KindProcess,
			Process: &spec.ProcessConfig{Command: "clockd"},
		},
		Tools: []spec.Tool{
			{
				Name:        "get_time",
				Description: "Returns the current time for a zone",
				Args:        []string{"time", "{zone}"},
				Terminator:  "OK",
				Parameters: []spec.Parameter{
					{Name: "zone", Type: spec.TypeString, Description: "IANA zone name", Required: true},
				},
			},
		},
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testDispatcher(t *testing.T, drv backend.Driver) *Dispatcher {
	t.Helper()
	d, err := New(Options{
		Spec:     testSpec(),
		Registry: backend.NewRegistry(func(*spec.Spec) (backend.Driver, error) { return drv, nil }),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  testMetrics(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDispatch_Success(t *testing.T) {
	drv := &stubDriver{out: "12:00 UTC"}
	d := testDispatcher(t, drv)

	res := d.Dispatch(context.Background(), "get_time", map[string]any{"zone": "UTC"})
	if !res.OK() {
		t.Fatalf("Dispatch() error = %v", res.Err)
	}
	if res.Output != "12:00 UTC" {
		t.Errorf("Output = %q, want %q", res.Output, "12:00 UTC")
	}
	if res.Tool != "get_time" {
		t.Errorf("Tool = %q, want get_time", res.Tool)
	}
	if res.CallID == "" {
		t.Error("CallID should be set")
	}
	if res.Duration <= 0 {
		t.Error("Duration should be positive")
	}
	if drv.terminator != "OK" {
		t.Errorf("terminator = %q, want the tool's terminator", drv.terminator)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := testDispatcher(t, &stubDriver{})

	res := d.Dispatch(context.Background(), "no_such_tool", nil)
	if res.OK() {
		t.Fatal("Dispatch() should fail for an unknown tool")
	}
	if res.Err.Kind != KindUnknownTool {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindUnknownTool)
	}
}

func TestDispatch_ValidationFailure(t *testing.T) {
	d := testDispatcher(t, &stubDriver{})

	res := d.Dispatch(context.Background(), "get_time", map[string]any{})
	if res.OK() {
		t.Fatal("Dispatch() should fail without required parameter")
	}
	if res.Err.Kind != KindValidation {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindValidation)
	}
}

func TestDispatch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"startup timeout", backend.ErrStartupTimeout, KindStartupTimeout},
		{"invocation timeout", backend.ErrInvocationTimeout, KindInvocationTimeout},
		{"crash", backend.ErrBackendCrashed, KindBackendCrashed},
		{"stopped", backend.ErrBackendStopped, KindBackendCrashed},
		{"http status", &backend.BackendError{Status: 500, Body: "boom"}, KindBackendError},
		{"connection", backend.ErrConnection, KindConnection},
		{"unclassified", io.ErrUnexpectedEOF, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDispatcher(t, &stubDriver{err: tt.err})
			res := d.Dispatch(context.Background(), "get_time", map[string]any{"zone": "UTC"})
			if res.OK() {
				t.Fatal("Dispatch() should fail")
			}
			if res.Err.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", res.Err.Kind, tt.want)
			}
		})
	}
}

func TestDispatch_TimeoutBudget(t *testing.T) {
	slow := &slowDriver{delay: time.Second}
	d, err := New(Options{
		Spec:           testSpec(),
		Registry:       backend.NewRegistry(func(*spec.Spec) (backend.Driver, error) { return slow, nil }),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:        testMetrics(t),
		DefaultTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	res := d.Dispatch(context.Background(), "get_time", map[string]any{"zone": "UTC"})
	if res.OK() {
		t.Fatal("Dispatch() should time out")
	}
	if res.Err.Kind != KindInvocationTimeout {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindInvocationTimeout)
	}
}

func TestWarm(t *testing.T) {
	drv := &stubDriver{}
	d := testDispatcher(t, drv)

	if err := d.Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if !drv.healthy {
		t.Error("Warm() should start the backend")
	}
}

func TestSearchTools(t *testing.T) {
	d := testDispatcher(t, &stubDriver{})

	results, err := d.SearchTools("time", 5)
	if err != nil {
		t.Fatalf("SearchTools() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("SearchTools() should find the declared tool")
	}
}

func TestDescribeTool(t *testing.T) {
	d := testDispatcher(t, &stubDriver{})

	doc, err := d.DescribeTool("clock:get_time", tooldoc.DetailFull)
	if err != nil {
		t.Fatalf("DescribeTool() error = %v", err)
	}
	if doc.Summary == "" {
		t.Error("DescribeTool() should return a summary")
	}
}

func TestSchema(t *testing.T) {
	tool := &spec.Tool{
		Name: "demo",
		Parameters: []spec.Parameter{
			{Name: "text", Type: spec.TypeString, Description: "input", Required: true},
			{Name: "count", Type: spec.TypeNumber},
			{Name: "verbose", Type: spec.TypeBoolean},
			{Name: "mode", Type: spec.TypeEnum, Enum: []string{"fast", "slow"}},
		},
	}

	schema := Schema(tool)
	if schema["type"] != "object" {
		t.Errorf("type = %v, want object", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	if props["count"].(map[string]any)["type"] != "number" {
		t.Error("count should be a number")
	}
	if props["verbose"].(map[string]any)["type"] != "boolean" {
		t.Error("verbose should be a boolean")
	}
	mode := props["mode"].(map[string]any)
	if mode["type"] != "string" {
		t.Error("enum parameters should be strings")
	}
	if len(mode["enum"].([]any)) != 2 {
		t.Error("enum values should be carried into the schema")
	}
	required := schema["required"].([]any)
	if len(required) != 1 || required[0] != "text" {
		t.Errorf("required = %v, want [text]", required)
	}
}

// slowDriver blocks until the invocation context expires.
type slowDriver struct {
	delay time.Duration
}

func (d *slowDriver) Kind() string                { return "slow" }
func (d *slowDriver) Start(context.Context) error { return nil }
func (d *slowDriver) Healthy() bool               { return true }
func (d *slowDriver) Stop() error                 { return nil }
func (d *slowDriver) Invoke(ctx context.Context, _ bind.Invocation, _ backend.InvokeOptions) (string, error) {
	select {
	case <-time.After(d.delay):
		return "", nil
	case <-ctx.Done():
		return "", backend.ErrInvocationTimeout
	}
}
