// Package cli implements the toolwrap command line: serve, validate, and
// view subcommands over a tool specification file.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// newLogger builds the CLI logger. Output goes to stderr so stdio-mode MCP
// traffic on stdout stays clean.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
