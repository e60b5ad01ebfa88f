package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/agentcore/internal/config"
	"github.com/Aman-CERP/agentcore/internal/providers"
)

// newStatusCmd reports what a freshly-built retrieval index over the
// current project looks like: how many files and chunks it produced, and
// which embedder backs it. There is no on-disk index to inspect between
// invocations (see internal/retrieval's package doc), so status always
// runs a fresh Build rather than reading persisted state.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report retrieval index size and embedder for the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}

			cfg, err := config.Load(root)
			if err != nil {
				cfg = config.NewConfig()
			}

			idx := newIndexForRoot(root)
			if err := idx.Build(cmd.Context()); err != nil {
				return fmt.Errorf("status: %w", err)
			}

			stats := idx.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project:        %s\n", root)
			fmt.Fprintf(out, "files indexed:  %d\n", stats.FilesIndexed)
			fmt.Fprintf(out, "chunks indexed: %d\n", stats.ChunksIndexed)
			fmt.Fprintf(out, "small model:    %s\n", firstNonEmpty(cfg.Routing.SmallModel, "claude-3-5-haiku-latest"))
			fmt.Fprintf(out, "standard model: %s\n", firstNonEmpty(cfg.Routing.StandardModel, "claude-3-7-sonnet-latest"))
			fmt.Fprintf(out, "large model:    %s\n", firstNonEmpty(cfg.Routing.LargeModel, "claude-3-7-sonnet-latest"))
			fmt.Fprintf(out, "local only:     %v\n", localOnly)

			ollama := providers.NewOllamaProvider(os.Getenv("AGENTCORE_OLLAMA_HOST"), cfg.Routing.LocalModel)
			fmt.Fprintf(out, "ollama reachable: %v (%s)\n", ollama.IsAvailable(cmd.Context()), ollama.ModelForDisplay())
			return nil
		},
	}
}
