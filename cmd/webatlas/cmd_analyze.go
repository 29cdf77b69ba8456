package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"webatlas/internal/browser"
	"webatlas/internal/discovery"
	"webatlas/internal/orchestrator"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		mode            string
		maxPages        int
		step2           bool
		step2Set        bool
		interactive     bool
		projectID       string
		costPriority    string
		focusAreas      []string
		includePatterns []string
		excludePatterns []string
		filterMode      string
		screenshots     bool
		interactions    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Run the full legacy-site analysis for a seed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			navOpts := browser.DefaultNavigateOptions()
			navOpts.EnableScreenshot = screenshots
			navOpts.CaptureInteractions = interactions
			o := buildOrchestrator(settings, navOpts)

			req := orchestrator.Request{
				SeedURL:        args[0],
				Mode:           orchestrator.Mode(mode),
				MaxPages:       maxPages,
				Interactive:    interactive,
				ProjectID:      projectID,
				CostPriority:   orchestrator.CostPriority(costPriority),
				FocusAreas:     focusAreas,
				IncludePattern: includePatterns,
				ExcludePattern: excludePatterns,
				FilterMode:     discovery.FilterMode(filterMode),
			}
			if step2Set {
				req.IncludeStep2 = &step2
			}
			if interactive {
				req.Confirm = terminalConfirm
			}

			result, err := o.AnalyzeLegacySite(cmd.Context(), req)
			if err != nil {
				if cmd.Context().Err() != nil {
					return errInterrupted
				}
				return err
			}
			if cmd.Context().Err() != nil {
				return errInterrupted
			}
			return reportOutcome(result)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "recommended", "analysis mode: quick, recommended, comprehensive, targeted")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap (targeted mode requires this)")
	cmd.Flags().BoolVar(&step2, "step2", true, "run feature analysis (step 2)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "confirm discovery, selection, and step 2 per page")
	cmd.Flags().StringVar(&projectID, "project", "", "project identifier (derived from the domain when empty)")
	cmd.Flags().StringVar(&costPriority, "cost-priority", "balanced", "speed, balanced, or cost_efficient")
	cmd.Flags().StringSliceVar(&focusAreas, "focus", nil, "focus-area keywords for targeted ordering")
	cmd.Flags().StringSliceVar(&includePatterns, "include", nil, "glob patterns to include")
	cmd.Flags().StringSliceVar(&excludePatterns, "exclude", nil, "glob patterns to exclude")
	cmd.Flags().StringVar(&filterMode, "filter-mode", "", "include or exclude (when both pattern lists are set)")
	cmd.Flags().BoolVar(&screenshots, "screenshots", false, "capture a screenshot per page")
	cmd.Flags().BoolVar(&interactions, "interactions", false, "run the bounded safe-interaction plan per page")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		step2Set = cmd.Flags().Changed("step2")
	}
	return cmd
}

// terminalConfirm prompts on stdin for interactive-mode checkpoints.
func terminalConfirm(stage, detail string) bool {
	switch stage {
	case "step2":
		fmt.Printf("Run step 2 (feature analysis) for %s? [Y/n] ", detail)
	default:
		fmt.Printf("Continue past %s (%s)? [Y/n] ", stage, detail)
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}
