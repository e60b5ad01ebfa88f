package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/agentcore/internal/config"
)

// newIndexCmd builds the Hybrid Retrieval Index (spec.md §4.1-§4.5) over
// the current project and reports how many chunks it produced, without
// running any task. Every run re-chunks and re-embeds from scratch — there
// is no on-disk index persisted between agentcore invocations yet (spec.md
// §4.6's Retrieval Cache binary format is built, but no subcommand wires
// its Save/Load path in yet; see DESIGN.md).
func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the retrieval index over the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}

			idx := newIndexForRoot(root)
			if err := idx.Build(cmd.Context()); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			stats := idx.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s (%d files, %d chunks)\n", root, stats.FilesIndexed, stats.ChunksIndexed)
			return nil
		},
	}
}
