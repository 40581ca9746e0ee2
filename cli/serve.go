package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolwrap/dispatch"
	"github.com/jonwraymond/toolwrap/observe"
	"github.com/jonwraymond/toolwrap/server"
	"github.com/jonwraymond/toolwrap/spec"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <spec-file>",
		Short: "Serve a specification as an MCP tool server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServe,
	}

	cmd.Flags().String("mode", "stdio", "Transport: stdio or http")
	cmd.Flags().String("host", "127.0.0.1", "Listen host (http mode)")
	cmd.Flags().IntP("port", "p", 8714, "Listen port (http mode)")
	cmd.Flags().Bool("eager", false, "Start the backend before accepting calls")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus /metrics (http mode)")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	eager, _ := cmd.Flags().GetBool("eager")
	metrics, _ := cmd.Flags().GetBool("metrics")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if mode != "stdio" && mode != "http" {
		return fmt.Errorf("unknown mode %q: want stdio or http", mode)
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	sp, err := spec.Load(args[0])
	if err != nil {
		return fmt.Errorf("load spec: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "toolwrap",
		ServiceVersion: cmd.Root().Version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	disp, err := dispatch.New(dispatch.Options{
		Spec:   sp,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = disp.Close() }()

	if eager {
		if err := disp.Warm(ctx); err != nil {
			return fmt.Errorf("start backend: %w", err)
		}
	}

	srv, err := server.New(server.Options{
		Dispatcher:    disp,
		Version:       cmd.Root().Version,
		Logger:        logger,
		ExposeMetrics: metrics,
	})
	if err != nil {
		return err
	}

	if mode == "http" {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		return srv.ServeHTTP(ctx, addr)
	}
	return srv.ServeStdio(ctx)
}
