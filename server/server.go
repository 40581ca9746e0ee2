// Package server is the protocol shell: it exposes a dispatcher's tools as
// an MCP tool-calling server over stdio or streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/toolwrap/dispatch"
)

// shutdownGrace bounds graceful HTTP shutdown once the serve context ends.
const shutdownGrace = 5 * time.Second

// ErrDispatcherRequired is returned by Options validation.
var ErrDispatcherRequired = errors.New("server: Dispatcher is required")

// Options configures a Server.
type Options struct {
	// Dispatcher executes the calls. Required.
	Dispatcher *dispatch.Dispatcher

	// Name is the MCP implementation name advertised to clients.
	// Default: the specification name.
	Name string

	// Version is the implementation version advertised to clients.
	// Default: "dev"
	Version string

	// Logger receives serve lifecycle events.
	// Default: slog.Default()
	Logger *slog.Logger

	// ExposeMetrics mounts a Prometheus /metrics endpoint next to the MCP
	// endpoint when serving HTTP. Ignored for stdio.
	ExposeMetrics bool
}

func (o *Options) validate() error {
	if o.Dispatcher == nil {
		return ErrDispatcherRequired
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = o.Dispatcher.Spec().Name
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Server exposes one dispatcher over the MCP protocol.
type Server struct {
	disp   *dispatch.Dispatcher
	mcpSrv *mcp.Server
	logger *slog.Logger
	opts   Options
}

// New creates a Server and registers every declared tool with its derived
// input schema.
func New(opts Options) (*Server, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	s := &Server{
		disp:   opts.Dispatcher,
		logger: opts.Logger,
		opts:   opts,
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	tools := opts.Dispatcher.Tools()
	for i := range tools {
		t := &tools[i]
		srv.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: dispatch.Schema(t),
		}, s.handler(t.Name))
	}
	s.mcpSrv = srv
	return s, nil
}

// handler adapts one tool to the MCP raw-arguments handler shape.
func (s *Server) handler(tool string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.callTool(ctx, tool, req.Params.Arguments), nil
	}
}

// callTool decodes arguments, dispatches, and converts the result. Failures
// become in-band error results rather than protocol errors, so the client
// sees the taxonomy kind and message.
func (s *Server) callTool(ctx context.Context, tool string, rawArgs json.RawMessage) *mcp.CallToolResult {
	var params map[string]any
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return errorResult(string(dispatch.KindValidation) + ": malformed arguments: " + err.Error())
		}
	}

	res := s.disp.Dispatch(ctx, tool, params)
	if !res.OK() {
		return errorResult(res.Err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Output}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx ends or the
// client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio",
		"spec", s.disp.Spec().Name, "tools", len(s.disp.Tools()))
	return s.mcpSrv.Run(ctx, &mcp.StdioTransport{})
}

// ServeHTTP serves the MCP protocol over streamable HTTP on addr until ctx
// ends, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpSrv
	}, nil))
	if s.opts.ExposeMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("serving MCP over HTTP",
		"addr", addr, "spec", s.disp.Spec().Name, "tools", len(s.disp.Tools()),
		"metrics", s.opts.ExposeMetrics)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
