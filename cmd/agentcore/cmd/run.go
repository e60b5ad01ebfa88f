package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// newRunCmd is an explicit alias for the root command's default action,
// for scripts that prefer a named subcommand over bare positional args.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [request text]",
		Short: "Process a single request through the execution core",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.Context(), strings.Join(args, " "))
		},
	}
}
