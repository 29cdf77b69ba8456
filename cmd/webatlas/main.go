// webatlas analyzes legacy web applications: it discovers a site's URL
// inventory, captures each page in a headless browser, runs a two-step
// LLM analysis, and emits rebuild-ready documentation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"webatlas/internal/browser"
	"webatlas/internal/config"
	"webatlas/internal/discovery"
	"webatlas/internal/llm"
	"webatlas/internal/logging"
	"webatlas/internal/orchestrator"
	"webatlas/internal/urlkit"
)

// Exit codes per the CLI contract.
const (
	exitOK          = 0
	exitConfig      = 2
	exitDiscovery   = 3
	exitAnalysis    = 4
	exitInterrupted = 130
)

var errInterrupted = errors.New("interrupted")

func main() {
	os.Exit(run())
}

func run() int {
	// .env is a convenience for local runs; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "webatlas",
		Short:         "Analyze legacy web applications into rebuild-ready documentation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAnalyzeCmd(),
		newDiscoverCmd(),
		newPagesCmd(),
		newStatusCmd(),
		newResumeCmd(),
		newResourcesCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(ctx, err)
	}
	return exitOK
}

func exitCodeFor(ctx context.Context, err error) int {
	if errors.Is(err, errInterrupted) || ctx.Err() != nil {
		return exitInterrupted
	}
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return exitConfig
	}
	var iu *urlkit.InvalidURLError
	if errors.As(err, &iu) {
		return exitConfig
	}
	var de *discovery.DiscoveryError
	if errors.As(err, &de) {
		return exitDiscovery
	}
	return exitAnalysis
}

// loadSettings resolves configuration and initializes logging. Must run
// before any directory writes.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	logDir := ""
	if settings.Debug {
		logDir = settings.LogDir()
	}
	if err := logging.Init(logging.Options{Debug: settings.Debug, LogDir: logDir, Console: true}); err != nil {
		return nil, err
	}
	return settings, nil
}

// buildOrchestrator wires the production collaborators.
func buildOrchestrator(settings *config.Settings, navOpts browser.NavigateOptions) *orchestrator.Orchestrator {
	pool := browser.NewPool(browser.PoolConfig{
		Size:     settings.MaxConcurrentPages,
		Headless: settings.Headless,
	})
	nav := orchestrator.NewRodNavigator(pool, navOpts)
	facade := llm.NewFacade(settings)
	pipeline := discovery.NewPipeline(discovery.Options{
		MaxDepth: settings.DiscoveryMaxDepth,
		Timeout:  settings.DiscoveryTimeout,
	})
	return orchestrator.New(settings, facade, nav, pipeline)
}

// reportOutcome prints the run summary and derives the exit error for
// degraded terminal states.
func reportOutcome(result *orchestrator.Result) error {
	if result.Aborted != "" {
		fmt.Printf("aborted at %s confirmation\n", result.Aborted)
		return nil
	}
	fmt.Printf("workflow %s: %s\n", result.WorkflowID, result.State)
	fmt.Printf("pages: %d completed, %d failed, %d skipped\n",
		result.Counts.Completed, result.Counts.Failed, result.Counts.Skipped)
	if result.ReportPath != "" {
		fmt.Printf("report: %s\n", result.ReportPath)
	}
	if result.Counts.Completed == 0 && result.Counts.Failed > 0 {
		return fmt.Errorf("no pages completed")
	}
	return nil
}
