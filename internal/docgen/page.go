// Package docgen renders per-page markdown documents and the incremental
// master report. Report bodies contain no timestamps so regeneration from
// identical artifacts is byte-identical; time lives in the metadata JSON.
package docgen

import (
	"fmt"
	"strings"

	"webatlas/internal/analysis"
)

// RenderPageMarkdown renders one page's document from its result.
func RenderPageMarkdown(r *analysis.PageResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Page: %s\n\n", r.URL)
	fmt.Fprintf(&b, "- **Page ID**: `%s`\n", r.PageID)
	fmt.Fprintf(&b, "- **Step 1 (content summary)**: %s\n", r.Step1)
	fmt.Fprintf(&b, "- **Step 2 (feature analysis)**: %s\n", r.Step2)
	if r.ProcessingTimeMs > 0 {
		fmt.Fprintf(&b, "- **Processing time**: %dms\n", r.ProcessingTimeMs)
	}
	b.WriteString("\n")

	if s := r.Summary; s != nil {
		b.WriteString("## Content Summary\n\n")
		fmt.Fprintf(&b, "**Purpose**: %s\n\n", s.Purpose)
		if s.UserContext != "" {
			fmt.Fprintf(&b, "**User context**: %s\n\n", s.UserContext)
		}
		if s.BusinessLogic != "" {
			fmt.Fprintf(&b, "**Business logic**: %s\n\n", s.BusinessLogic)
		}
		if s.NavigationRole != "" {
			fmt.Fprintf(&b, "**Navigation role**: %s\n\n", s.NavigationRole)
		}
		fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Business importance | %.2f |\n", s.BusinessImportance)
		fmt.Fprintf(&b, "| Confidence | %.2f |\n", s.Confidence)
		fmt.Fprintf(&b, "| Journey stage | %s |\n", s.JourneyStage)
		fmt.Fprintf(&b, "| Quality (overall) | %.2f |\n", s.Quality.Overall)
		fmt.Fprintf(&b, "| Quality (completeness) | %.2f |\n", s.Quality.Completeness)
		fmt.Fprintf(&b, "| Quality (specificity) | %.2f |\n", s.Quality.Specificity)
		fmt.Fprintf(&b, "| Quality (depth) | %.2f |\n", s.Quality.Depth)
		b.WriteString("\n")
		if len(s.Workflows) > 0 {
			b.WriteString("**Workflows**:\n\n")
			for _, w := range s.Workflows {
				fmt.Fprintf(&b, "- %s\n", w)
			}
			b.WriteString("\n")
		}
		if len(s.Keywords) > 0 {
			fmt.Fprintf(&b, "**Keywords**: %s\n\n", strings.Join(s.Keywords, ", "))
		}
	}

	if f := r.Features; f != nil {
		b.WriteString("## Feature Analysis\n\n")
		fmt.Fprintf(&b, "Overall confidence: %.2f · Quality score: %.2f\n\n", f.OverallConfidence, f.QualityScore)

		if len(f.InteractiveElements) > 0 {
			b.WriteString("### Interactive Elements\n\n")
			b.WriteString("| Type | Selector | Purpose |\n|---|---|---|\n")
			for _, el := range f.InteractiveElements {
				fmt.Fprintf(&b, "| %s | `%s` | %s |\n", el.Type, el.Selector, mdCell(el.Purpose))
			}
			b.WriteString("\n")
		}
		if len(f.FunctionalCapabilities) > 0 {
			b.WriteString("### Functional Capabilities\n\n")
			for _, c := range f.FunctionalCapabilities {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			b.WriteString("\n")
		}
		if len(f.APIIntegrations) > 0 {
			b.WriteString("### API Integrations\n\n")
			b.WriteString("| Method | Endpoint | Purpose | Auth |\n|---|---|---|---|\n")
			for _, api := range f.APIIntegrations {
				fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", api.Method, api.Endpoint, mdCell(api.Purpose), api.Auth)
			}
			b.WriteString("\n")
		}
		if len(f.BusinessRules) > 0 {
			b.WriteString("### Business Rules\n\n")
			for _, rule := range f.BusinessRules {
				fmt.Fprintf(&b, "- %s\n", rule)
			}
			b.WriteString("\n")
		}
		if len(f.RebuildSpecs) > 0 {
			b.WriteString("### Rebuild Specs\n\n")
			b.WriteString("| Priority | Title | Complexity | Interactive | Description |\n|---|---|---|---|---|\n")
			for _, spec := range f.RebuildSpecs {
				fmt.Fprintf(&b, "| %s | %s | %d | %v | %s |\n",
					spec.Priority, mdCell(spec.Title), spec.Complexity, spec.Interactive, mdCell(spec.Description))
			}
			b.WriteString("\n")
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.Kind, mdCell(e.Message))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// mdCell keeps free text from breaking markdown tables.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
