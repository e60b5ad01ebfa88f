package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/agentcore/internal/logging"
)

// newLogsCmd tails the debug log agentcore writes when run with --debug
// (internal/logging.Setup), and optionally the local Ollama daemon's own
// log if the user has redirected `ollama serve` output into
// ~/.agentcore/logs/ollama.log.
func newLogsCmd() *cobra.Command {
	var (
		source  string
		lines   int
		follow  bool
		level   string
		pattern string
		path    string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View agentcore's debug log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := logging.ParseLogSource(source)
			paths, err := logging.FindLogFileBySource(src, path)
			if err != nil {
				return err
			}

			cfg := logging.ViewerConfig{
				Level:      level,
				NoColor:    noColor,
				ShowSource: src == logging.LogSourceAll,
			}
			if pattern != "" {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
				cfg.Pattern = re
			}
			v := logging.NewViewer(cfg, cmd.OutOrStdout())

			entries, err := v.TailMultiple(paths, lines)
			if err != nil {
				return err
			}
			v.Print(entries)

			if !follow {
				return nil
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ch := make(chan logging.LogEntry, 64)
			go func() {
				for entry := range ch {
					v.Print([]logging.LogEntry{entry})
				}
			}()
			// FollowMultiple's per-file goroutines may still be sending after
			// it returns on ctx cancellation, so ch is deliberately never
			// closed here — it is reclaimed at process exit along with them.
			return v.FollowMultiple(ctx, paths, ch)
		},
	}

	cmd.Flags().StringVar(&source, "source", "go", "Log source: go, ollama, all")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log as new entries are written")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&pattern, "grep", "", "Only show lines matching this regular expression")
	cmd.Flags().StringVar(&path, "path", "", "Explicit log file path, overriding --source")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}
