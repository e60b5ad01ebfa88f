package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/agentcore/internal/config"
	"github.com/Aman-CERP/agentcore/internal/lifecycle"
	"github.com/Aman-CERP/agentcore/internal/preflight"
)

// newDoctorCmd runs the preflight checks buildExecutor otherwise discovers
// only as opaque failures deep into a request: disk space, memory, write
// permissions, file descriptor limits, and the local Ollama embedder's
// model/disk-space readiness.
func newDoctorCmd() *cobra.Command {
	var (
		doctorVerbose bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements before running a request",
		Long: `Run system diagnostics to ensure agentcore can operate correctly.

Checks:
  - Disk space
  - Memory availability
  - Write permissions
  - File descriptor limits
  - Local embedder model status (downloaded/missing)
  - Local embedder disk space

Embedder checks are non-critical warnings: retrieval still runs on whatever
embedder internal/retrieval/embed falls back to.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, doctorVerbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ = cmd.Flags().GetBool("json")
		return nil
	}

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	if jsonOutput {
		return writeDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	for _, r := range results {
		if r.Name == "embedder_model" && r.Status != preflight.StatusPass {
			fmt.Fprintln(cmd.OutOrStdout())
			lifecycle.ShowInstallInstructions(cmd.OutOrStdout())
			break
		}
	}

	dataDir := filepath.Join(root, ".agentcore")
	if !preflight.NeedsCheck(dataDir) {
		if age := preflight.MarkerAge(dataDir); age > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nLast successful check: %s ago\n", formatCheckAge(age.Hours()))
		}
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

type doctorJSONOutput struct {
	Status   string              `json:"status"`
	Checks   []doctorJSONCheck   `json:"checks"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheck, len(results)),
	}
	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   doctorStatusString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func doctorStatusString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func formatCheckAge(hours float64) string {
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		h := int(hours)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	days := int(hours / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
