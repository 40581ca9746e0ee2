// Package dispatch is the engine core: it routes named tool calls through
// parameter binding, backend acquisition, and invocation, and turns every
// outcome into a structured result a protocol shell can surface.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/spec"
)

// Dispatcher serves calls for one loaded specification. It owns the backend
// registry and a discovery index holding one entry per declared tool.
type Dispatcher struct {
	sp       *spec.Spec
	registry *backend.Registry
	index    index.Index
	docs     tooldoc.Store
	logger   *slog.Logger
	metrics  metricsRecorder
	timeout  time.Duration
}

// metricsRecorder is the slice of observe.Metrics the dispatcher needs.
type metricsRecorder interface {
	RecordCall(ctx context.Context, tool, status string, seconds float64)
}

// New creates a Dispatcher and registers every declared tool in the
// discovery index and documentation store.
func New(opts Options) (*Dispatcher, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	idx := index.NewInMemoryIndex()
	docs := tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: idx})

	sp := opts.Spec
	tags := model.NormalizeTags([]string{string(sp.Backend.Type), sp.Name})
	for i := range sp.Tools {
		t := &sp.Tools[i]
		mt := model.Tool{
			Tool: mcp.Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: Schema(t),
			},
			Namespace: sp.Name,
			Tags:      tags,
		}
		if err := idx.RegisterTool(mt, model.NewLocalBackend(sp.Name+"-"+t.Name)); err != nil {
			return nil, fmt.Errorf("register tool %q: %w", t.Name, err)
		}
		if err := docs.RegisterDoc(sp.Name+":"+t.Name, docEntry(t)); err != nil {
			return nil, fmt.Errorf("register doc for %q: %w", t.Name, err)
		}
	}

	return &Dispatcher{
		sp:       sp,
		registry: opts.Registry,
		index:    idx,
		docs:     docs,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		timeout:  opts.DefaultTimeout,
	}, nil
}

// Dispatch executes one named call and returns its structured result.
// Failures are reported inside the result, never as a Go error: the protocol
// shell decides how to surface them.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, params map[string]any) Result {
	start := time.Now()
	callID := uuid.NewString()

	res := d.call(ctx, tool, params)
	res.Tool = tool
	res.CallID = callID
	res.Duration = time.Since(start)

	status := "ok"
	if !res.OK() {
		status = string(res.Err.Kind)
	}
	d.metrics.RecordCall(ctx, tool, status, res.Duration.Seconds())

	if res.OK() {
		d.logger.Info("call completed",
			"call_id", callID, "tool", tool, "duration", res.Duration)
	} else {
		d.logger.Warn("call failed",
			"call_id", callID, "tool", tool, "duration", res.Duration,
			"kind", res.Err.Kind, "error", res.Err.Message)
	}
	return res
}

func (d *Dispatcher) call(ctx context.Context, tool string, params map[string]any) Result {
	t, ok := d.sp.Tool(tool)
	if !ok {
		return Result{Err: classify(fmt.Errorf("%w: %q", backend.ErrUnknownTool, tool))}
	}

	inv, err := bind.Bind(t, params)
	if err != nil {
		return Result{Err: classify(err)}
	}

	// The budget covers backend startup too: a lazily-spawned backend that
	// never becomes ready fails the call that triggered it.
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	drv, err := d.registry.GetOrCreate(ctx, d.sp)
	if err != nil {
		return Result{Err: classify(err)}
	}

	out, err := drv.Invoke(ctx, inv, backend.InvokeOptions{Terminator: t.Terminator})
	if err != nil {
		return Result{Err: classify(err)}
	}
	return Result{Output: out}
}

// Warm eagerly starts the backend instead of waiting for the first call.
func (d *Dispatcher) Warm(ctx context.Context) error {
	_, err := d.registry.GetOrCreate(ctx, d.sp)
	return err
}

// Spec returns the served specification.
func (d *Dispatcher) Spec() *spec.Spec { return d.sp }

// Tools returns the declared tools in specification order.
func (d *Dispatcher) Tools() []spec.Tool { return d.sp.Tools }

// SearchTools finds declared tools matching a query.
func (d *Dispatcher) SearchTools(query string, limit int) ([]index.Summary, error) {
	return d.index.Search(query, limit)
}

// DescribeTool retrieves tool documentation at the given detail level.
// The tool ID is "<spec name>:<tool name>".
func (d *Dispatcher) DescribeTool(toolID string, level tooldoc.DetailLevel) (tooldoc.ToolDoc, error) {
	return d.docs.DescribeTool(toolID, level)
}

// Close stops all backend instances.
func (d *Dispatcher) Close() error {
	return d.registry.StopAll()
}

// docEntry builds the documentation entry for one tool: a parameter table in
// the notes and a worked example with plausible argument values.
func docEntry(t *spec.Tool) tooldoc.DocEntry {
	var notes strings.Builder
	for _, p := range t.Parameters {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&notes, "%s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
	}

	entry := tooldoc.DocEntry{
		Summary: t.Description,
		Notes:   strings.TrimRight(notes.String(), "\n"),
	}
	if args := exampleArgs(t); len(args) > 0 {
		entry.Examples = []tooldoc.ToolExample{
			{Title: "Basic call", Args: args},
		}
	}
	return entry
}

func exampleArgs(t *spec.Tool) map[string]any {
	args := make(map[string]any)
	for _, p := range t.Parameters {
		if !p.Required {
			continue
		}
		switch p.Type {
		case spec.TypeNumber:
			args[p.Name] = 1
		case spec.TypeBoolean:
			args[p.Name] = true
		case spec.TypeEnum:
			args[p.Name] = p.Enum[0]
		default:
			args[p.Name] = "example"
		}
	}
	return args
}
