// Command toolwrap turns a declarative tool specification into an MCP
// tool-calling server backed by a command-line program or an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolwrap/cli"
)

// Set via ldflags at build time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "toolwrap",
	Short:        "toolwrap - wrap existing programs as MCP tool servers",
	Long:         "toolwrap exposes a CLI program or HTTP API as an MCP tool-calling server, driven by a declarative specification file.",
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolwrap version %s\n", version))

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewValidateCmd())
	rootCmd.AddCommand(cli.NewViewCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
