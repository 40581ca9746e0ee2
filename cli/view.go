package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolwrap/dispatch"
	"github.com/jonwraymond/toolwrap/spec"
)

// NewViewCmd creates the "view" subcommand.
func NewViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <spec-file>",
		Short: "Show the tools a specification exposes",
		Args:  cobra.ExactArgs(1),
		RunE:  runView,
	}
	cmd.Flags().String("tool", "", "Show full documentation for one tool")
	return cmd
}

func runView(cmd *cobra.Command, args []string) error {
	toolName, _ := cmd.Flags().GetString("tool")

	sp, err := spec.Load(args[0])
	if err != nil {
		return fmt.Errorf("load spec: %w", err)
	}

	out := cmd.OutOrStdout()
	if toolName != "" {
		return viewTool(out, sp, toolName)
	}
	viewSpec(out, sp)
	return nil
}

func viewSpec(out io.Writer, sp *spec.Spec) {
	caser := cases.Title(language.English)

	fmt.Fprintf(out, "%s\n", caser.String(sp.Name))
	if sp.Description != "" {
		fmt.Fprintf(out, "  %s\n", sp.Description)
	}
	fmt.Fprintf(out, "\nBackend: %s\n", sp.Backend.Type)
	switch sp.Backend.Type {
	case spec.KindProcess:
		fmt.Fprintf(out, "  command: %s %s\n",
			sp.Backend.Process.Command, strings.Join(sp.Backend.Process.Args, " "))
	case spec.KindHTTP:
		fmt.Fprintf(out, "  base URL: %s\n", sp.Backend.HTTP.BaseURL)
	}

	fmt.Fprintf(out, "\nTools (%d):\n", len(sp.Tools))
	for i := range sp.Tools {
		t := &sp.Tools[i]
		fmt.Fprintf(out, "  %s - %s\n", t.Name, t.Description)
		for _, p := range t.Parameters {
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(out, "    %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
}

// viewTool shows one tool's full documentation from the discovery store.
func viewTool(out io.Writer, sp *spec.Spec, toolName string) error {
	if _, ok := sp.Tool(toolName); !ok {
		return fmt.Errorf("tool %q is not declared by %q", toolName, sp.Name)
	}

	// A dispatcher is only built for its index and doc store; no backend is
	// started.
	disp, err := dispatch.New(dispatch.Options{
		Spec:   sp,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}
	defer func() { _ = disp.Close() }()

	doc, err := disp.DescribeTool(sp.Name+":"+toolName, tooldoc.DetailFull)
	if err != nil {
		return fmt.Errorf("describe tool %q: %w", toolName, err)
	}

	caser := cases.Title(language.English)
	fmt.Fprintf(out, "%s\n", caser.String(toolName))
	fmt.Fprintf(out, "  %s\n", doc.Summary)
	if doc.Notes != "" {
		fmt.Fprintf(out, "\nParameters:\n")
		for _, line := range strings.Split(doc.Notes, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}
