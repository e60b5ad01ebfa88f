// Package cmd provides the CLI commands for agentcore.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/agentcore/internal/config"
	"github.com/Aman-CERP/agentcore/internal/executor"
	"github.com/Aman-CERP/agentcore/internal/logging"
	"github.com/Aman-CERP/agentcore/internal/profiling"
	"github.com/Aman-CERP/agentcore/internal/providers"
	"github.com/Aman-CERP/agentcore/internal/retrieval"
	retrievalctx "github.com/Aman-CERP/agentcore/internal/retrieval/context"
	"github.com/Aman-CERP/agentcore/internal/routing"
	"github.com/Aman-CERP/agentcore/internal/toolset"
	"github.com/Aman-CERP/agentcore/internal/ui"
	"github.com/Aman-CERP/agentcore/internal/workspace"
	"github.com/Aman-CERP/agentcore/pkg/version"
)

// Global flags bound by the root command (spec.md §6), applied in
// buildExecutor: --local restricts the router to Ollama and --no-validate
// is passed to Executor.WithNoValidate.
var (
	noValidate bool
	localOnly  bool
	verbose    bool
	debugMode  bool
	cpuProfile string

	loggingCleanup func()
	stopCPUProfile func()
)

// NewRootCmd creates the root command for the agentcore CLI. Run with no
// subcommand, it treats its arguments as the request text and drives it
// straight through ProcessRequest — "agentcore fix the flaky retry test"
// behaves the same as "agentcore run fix the flaky retry test".
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agentcore [request text]",
		Short:   "Self-determining task executor for local codebases",
		Version: version.Version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runRequest(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.SetVersionTemplate("agentcore version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&noValidate, "no-validate", false, "Skip verification commands after execution")
	cmd.PersistentFlags().BoolVar(&localOnly, "local", false, "Restrict routing to locally-available providers only")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Render task step and tool-call events, not just task-level output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the log file")
	cmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	if cpuProfile != "" {
		cleanup, err := profiling.NewProfiler().StartCPU(cpuProfile)
		if err != nil {
			return fmt.Errorf("failed to start cpu profile: %w", err)
		}
		stopCPUProfile = cleanup
	}

	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	if stopCPUProfile != nil {
		stopCPUProfile()
		stopCPUProfile = nil
	}
	return nil
}

// buildExecutor wires one fully-configured Executor over projectRoot: the
// Router with its three difficulty tiers (spec.md §4.9), the Tool
// Registry's grep backend, the Context Fetcher over a freshly-built
// retrieval index (spec.md §4.10), and the workspace/lock state the
// executor commits through.
func buildExecutor(ctx context.Context, projectRoot string) (*executor.Executor, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		cfg = config.NewConfig()
	}

	router := routing.New()
	if localOnly {
		ollama := providers.NewOllamaProvider(os.Getenv("AGENTCORE_OLLAMA_HOST"), cfg.Routing.LocalModel)
		if ollama.IsAvailable(ctx) {
			router.Register("small", ollama)
			router.Register("standard", ollama)
			router.Register("large", ollama)
		}
	} else if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		small := firstNonEmpty(cfg.Routing.SmallModel, "claude-3-5-haiku-latest")
		standard := firstNonEmpty(cfg.Routing.StandardModel, "claude-3-7-sonnet-latest")
		large := firstNonEmpty(cfg.Routing.LargeModel, "claude-3-7-sonnet-latest")
		router.Register("small", providers.NewAnthropicProvider(key, small))
		router.Register("standard", providers.NewAnthropicProvider(key, standard))
		router.Register("large", providers.NewAnthropicProvider(key, large))
	}

	if router.Len() == 0 {
		if localOnly {
			return nil, fmt.Errorf("--local was given but no Ollama daemon is reachable at %s; start it with 'ollama serve' or drop --local", firstNonEmpty(os.Getenv("AGENTCORE_OLLAMA_HOST"), "http://localhost:11434"))
		}
		return nil, fmt.Errorf("no provider available: set ANTHROPIC_API_KEY")
	}

	global := workspace.New(projectRoot)
	locks := workspace.NewFileLockManager()

	ex := executor.New(router, global, locks, projectRoot).
		WithNoValidate(noValidate).
		WithVerificationTimeout(cfg.Verification.DefaultTimeout)

	if grep, err := toolset.NewBleveGrep(); err == nil {
		ex.WithGrep(grep)
	}

	idx := newIndexForRoot(projectRoot)
	if err := idx.Build(ctx); err == nil {
		builder := retrievalctx.New(projectRoot, idx, retrievalSystemPrompt, retrievalCacheSize)
		ex.WithContextBuilder(builder)
		ex.WithContextRequester(contextRequesterAdapter{idx})
	}

	return ex, nil
}

const (
	retrievalSystemPrompt = "You are an agentic coding assistant working in a local repository. Use the given file context to answer precisely."
	retrievalCacheSize    = 256
)

// contextRequesterAdapter satisfies toolset.ContextRequester over a
// retrieval.Index, servicing a script's requestContext tool call and a
// task's GatherContext self-ask with the same retrieval pass (spec.md
// §4.11).
type contextRequesterAdapter struct {
	idx *retrieval.Index
}

func (a contextRequesterAdapter) RequestContext(_ context.Context, pattern, _ string, maxFiles int) ([]string, error) {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	hits, err := a.idx.Search(pattern, maxFiles)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.FilePath+":\n"+h.Preview)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// runRequest drives one request through a freshly-built Executor, rendering
// its UI events to stdout as they arrive.
func runRequest(ctx context.Context, text string) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	ex, err := buildExecutor(ctx, root)
	if err != nil {
		return err
	}

	ch := ui.NewEventChannel(64)
	renderer := ui.NewTaskEventRenderer(os.Stdout, ui.DetectNoColor()).WithVerbose(verbose)
	done := make(chan struct{})
	go func() {
		renderer.Run(ch)
		close(done)
	}()

	results, err := ex.ProcessRequest(ctx, text, ch.Sender())
	ch.Close()
	<-done

	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Success && r.Err != nil {
			return r.Err
		}
	}
	return nil
}
