package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jonwraymond/toolwrap/spec"
)

// shellSpec wraps an inline shell loop as a two-tool specification: a normal
// echo-style tool and one that makes the backend exit.
func shellSpec() *spec.Spec {
	script := `echo ready
while read line; do
  if [ "$line" = "die" ]; then exit 1; fi
  echo "now: $line"
  echo "DONE"
done`
	return &spec.Spec{
		Name:        "clock",
		Description: "Shell-backed clock",
		Backend: spec.Backend{
			Type: spec.KindProcess,
			Process: &spec.ProcessConfig{
				Command:        "sh",
				Args:           []string{"-c", script},
				ReadySignal:    "ready",
				StartupTimeout: 5,
			},
		},
		Tools: []spec.Tool{
			{
				Name:        "get_time",
				Description: "Returns the time for a zone",
				Args:        []string{"time", "{zone}"},
				Terminator:  "DONE",
				Parameters: []spec.Parameter{
					{Name: "zone", Type: spec.TypeString, Description: "Zone name", Required: true},
				},
			},
			{
				Name:        "crash",
				Description: "Makes the backend exit",
				Args:        []string{"die"},
				Terminator:  "DONE",
			},
		},
	}
}

// End to end through the real process driver: lazy spawn on first call,
// crash surfaced as its kind, fresh instance on the call after the crash.
func TestDispatch_ProcessBackendLifecycle(t *testing.T) {
	sp := shellSpec()
	if err := spec.Validate(sp); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	d, err := New(Options{
		Spec:    sp,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: testMetrics(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()

	// First call spawns the backend.
	res := d.Dispatch(ctx, "get_time", map[string]any{"zone": "UTC"})
	if !res.OK() {
		t.Fatalf("Dispatch() error = %v", res.Err)
	}
	if res.Output != "now: time UTC" {
		t.Errorf("Output = %q, want %q", res.Output, "now: time UTC")
	}

	// Kill the backend mid-session.
	res = d.Dispatch(ctx, "crash", nil)
	if res.OK() {
		t.Fatal("Dispatch(crash) should fail")
	}
	if res.Err.Kind != KindBackendCrashed {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindBackendCrashed)
	}

	// The next call gets a respawned instance.
	res = d.Dispatch(ctx, "get_time", map[string]any{"zone": "CET"})
	if !res.OK() {
		t.Fatalf("Dispatch() after crash error = %v", res.Err)
	}
	if res.Output != "now: time CET" {
		t.Errorf("Output = %q, want %q", res.Output, "now: time CET")
	}
}
