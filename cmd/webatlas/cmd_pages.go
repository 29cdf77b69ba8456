package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"webatlas/internal/browser"
)

func newPagesCmd() *cobra.Command {
	var (
		projectID string
		step2     bool
		fromFile  string
	)

	cmd := &cobra.Command{
		Use:   "pages [url...]",
		Short: "Analyze an explicit list of URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string(nil), args...)
			if fromFile != "" {
				fileURLs, err := readURLFile(fromFile)
				if err != nil {
					return err
				}
				urls = append(urls, fileURLs...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no urls given; pass arguments or --file")
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			o := buildOrchestrator(settings, browser.DefaultNavigateOptions())

			result, err := o.AnalyzePageList(cmd.Context(), projectID, urls, step2, false, nil)
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

	cmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	cmd.Flags().BoolVar(&step2, "step2", true, "run feature analysis (step 2)")
	cmd.Flags().StringVar(&fromFile, "file", "", "file with one URL per line (# comments allowed)")
	return cmd
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
