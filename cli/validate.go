package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolwrap/spec"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Check a specification file without serving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := spec.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid spec: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%s backend, %d tools)\n",
				sp.Name, sp.Backend.Type, len(sp.Tools))
			return nil
		},
	}
}
