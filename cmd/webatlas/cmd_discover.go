package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"webatlas/internal/discovery"
	"webatlas/internal/logging"
)

func newDiscoverCmd() *cobra.Command {
	var (
		maxDepth        int
		maxPages        int
		includePatterns []string
		excludePatterns []string
		filterMode      string
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "Discover a site's URL inventory without analyzing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Discovery needs no model configuration; initialize logging
			// directly so missing LLM env vars don't block it.
			if err := logging.Init(logging.Options{Console: true}); err != nil {
				return err
			}

			pipeline := discovery.NewPipeline(discovery.Options{
				MaxDepth:      maxDepth,
				MaxCrawlPages: maxPages,
			})
			inv, err := pipeline.Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(includePatterns) > 0 || len(excludePatterns) > 0 {
				inv.Entries = discovery.ApplyFilters(inv.Entries, includePatterns, excludePatterns, discovery.FilterMode(filterMode))
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(inv)
			}
			for _, e := range inv.Entries {
				kind := "page"
				if e.IsAsset {
					kind = "asset"
				}
				if !e.Internal {
					kind = "external"
				}
				fmt.Printf("%-8s %-14s depth=%d complexity=%d  %s\n", kind, e.Source, e.Depth, e.Complexity, e.Normalized.URL)
			}
			fmt.Printf("\n%d urls (%d internal pages)\n", inv.Len(), len(inv.Pages()))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "crawl depth limit")
	cmd.Flags().IntVar(&maxPages, "max-pages", 100, "crawl page limit")
	cmd.Flags().StringSliceVar(&includePatterns, "include", nil, "glob patterns to include")
	cmd.Flags().StringSliceVar(&excludePatterns, "exclude", nil, "glob patterns to exclude")
	cmd.Flags().StringVar(&filterMode, "filter-mode", "", "include or exclude")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the inventory as JSON")
	return cmd
}
