package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"webatlas/internal/artifacts"
	"webatlas/internal/browser"
	"webatlas/internal/orchestrator"
	"webatlas/internal/resources"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show a project's analysis progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			status, err := orchestrator.ProjectStatus(settings, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			fmt.Printf("project: %s\n", status.ProjectID)
			if status.SeedURL != "" {
				fmt.Printf("seed:    %s\n", status.SeedURL)
			}
			if status.WorkflowID != "" {
				fmt.Printf("workflow: %s\n", status.WorkflowID)
			}
			c := status.Counts
			fmt.Printf("pages:   %d total, %d completed, %d failed, %d skipped\n",
				c.Total, c.Completed, c.Failed, c.Skipped)
			if len(status.Pending) > 0 {
				fmt.Printf("pending: %d\n", len(status.Pending))
			}
			fmt.Printf("report:  %v\n", status.HasReport)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit status as JSON")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		step2       bool
		retryFailed bool
	)

	cmd := &cobra.Command{
		Use:   "resume <checkpoint-path>",
		Short: "Resume an interrupted workflow from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			cp, err := artifacts.LoadCheckpointFrom(args[0])
			if err != nil {
				return err
			}

			o := buildOrchestrator(settings, browser.DefaultNavigateOptions())
			result, err := o.Resume(cmd.Context(), cp, step2, retryFailed)
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
	cmd.Flags().BoolVar(&step2, "step2", true, "run feature analysis (step 2)")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "re-queue pages the previous run marked failed")
	return cmd
}

func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Inspect persisted analysis artifacts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List artifact URIs across all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			items, err := resources.NewExposer(settings.OutputRoot).List()
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Printf("%-24s %8d  %s\n", item.Mime, item.Size, item.URI)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <uri>",
		Short: "Print an artifact's contents by URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			data, _, err := resources.NewExposer(settings.OutputRoot).Get(args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}
