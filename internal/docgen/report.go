package docgen

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"webatlas/internal/analysis"
	"webatlas/internal/artifacts"
	"webatlas/internal/logging"
)

// Generator maintains the per-page documents and the master report on top
// of an artifact store. Safe for concurrent PageDone calls: the store
// serializes report publication through its advisory lock, and the master
// report is always regenerated from the on-disk artifacts rather than
// in-memory state.
type Generator struct {
	store *artifacts.Store
	meta  *artifacts.ProjectMetadata
}

// NewGenerator binds a generator to a store and project metadata.
func NewGenerator(store *artifacts.Store, meta *artifacts.ProjectMetadata) *Generator {
	return &Generator{store: store, meta: meta}
}

// PageDone incrementally publishes documentation after a page reaches a
// terminal state: (a) the per-page markdown, (b) a freshly regenerated
// master report including the table of contents rebuilt from disk.
func (g *Generator) PageDone(result *analysis.PageResult) error {
	if result == nil {
		return nil
	}
	if err := g.store.WritePageMarkdown(result.PageID, RenderPageMarkdown(result)); err != nil {
		return err
	}
	if err := g.store.WritePageResult(result); err != nil {
		return err
	}
	return g.RegenerateMasterReport()
}

// RegenerateMasterReport rebuilds analysis-report.md from every per-page
// JSON artifact on disk and publishes it atomically. Output is
// deterministic for a given artifact set.
func (g *Generator) RegenerateMasterReport() error {
	slugs, err := g.store.ListPageMarkdown()
	if err != nil {
		return err
	}
	results := make([]*analysis.PageResult, 0, len(slugs))
	for _, slug := range slugs {
		r, rerr := g.store.ReadPageResult(slug)
		if rerr != nil {
			logging.Docgen().Warn("page result unreadable, omitting from report",
				zap.String("slug", slug), zap.Error(rerr))
			continue
		}
		results = append(results, r)
	}

	report := RenderMasterReport(g.meta, results)
	return g.store.WriteMasterReport(report)
}

// RenderMasterReport renders the full master report. Results must be in
// deterministic (slug) order.
func RenderMasterReport(meta *artifacts.ProjectMetadata, results []*analysis.PageResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Legacy Site Analysis: %s\n\n", meta.Domain)
	fmt.Fprintf(&b, "Seed URL: <%s>\n\n", meta.SeedURL)

	completed, failed, partial := 0, 0, 0
	var sumQuality, sumFeatQuality float64
	var qualityN, featN int
	for _, r := range results {
		switch {
		case r.Succeeded():
			completed++
		case r.Summary != nil:
			partial++
		default:
			failed++
		}
		if r.Summary != nil {
			sumQuality += r.Summary.Quality.Overall
			qualityN++
		}
		if r.Features != nil {
			sumFeatQuality += r.Features.QualityScore
			featN++
		}
	}

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Pages analyzed | %d |\n", len(results))
	fmt.Fprintf(&b, "| Completed | %d |\n", completed)
	fmt.Fprintf(&b, "| Partial | %d |\n", partial)
	fmt.Fprintf(&b, "| Failed | %d |\n", failed)
	if qualityN > 0 {
		fmt.Fprintf(&b, "| Avg summary quality | %.2f |\n", sumQuality/float64(qualityN))
	}
	if featN > 0 {
		fmt.Fprintf(&b, "| Avg feature quality | %.2f |\n", sumFeatQuality/float64(featN))
	}
	b.WriteString("\n")

	b.WriteString("## Table of Contents\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s](pages/page-%s.md)\n", r.URL, r.PageID)
	}
	b.WriteString("\n")

	b.WriteString("## Pages\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "### %s\n\n", r.URL)
		fmt.Fprintf(&b, "Status: step1=%s, step2=%s — [full analysis](pages/page-%s.md)\n\n", r.Step1, r.Step2, r.PageID)
		if r.Summary != nil {
			fmt.Fprintf(&b, "%s\n\n", r.Summary.Purpose)
		}
	}

	renderAPISummary(&b, results)
	renderBusinessLogic(&b, results)
	renderTechnicalSpecs(&b, results)
	renderPartialResults(&b, results)

	return b.String()
}

// renderAPISummary groups every observed API integration by method.
func renderAPISummary(b *strings.Builder, results []*analysis.PageResult) {
	byMethod := make(map[string][]analysis.APIIntegration)
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Features == nil {
			continue
		}
		for _, api := range r.Features.APIIntegrations {
			key := api.Method + " " + api.Endpoint
			if seen[key] {
				continue
			}
			seen[key] = true
			byMethod[api.Method] = append(byMethod[api.Method], api)
		}
	}
	if len(byMethod) == 0 {
		return
	}

	b.WriteString("## API Integration Summary\n\n")
	methods := make([]string, 0, len(byMethod))
	for m := range byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		apis := byMethod[m]
		sort.Slice(apis, func(i, j int) bool { return apis[i].Endpoint < apis[j].Endpoint })
		fmt.Fprintf(b, "### %s\n\n", m)
		b.WriteString("| Endpoint | Purpose | Auth |\n|---|---|---|\n")
		for _, api := range apis {
			fmt.Fprintf(b, "| `%s` | %s | %s |\n", api.Endpoint, mdCell(api.Purpose), api.Auth)
		}
		b.WriteString("\n")
	}
}

// renderBusinessLogic lists deduplicated workflows across all pages.
func renderBusinessLogic(b *strings.Builder, results []*analysis.PageResult) {
	seen := make(map[string]bool)
	var workflows []string
	for _, r := range results {
		if r.Summary == nil {
			continue
		}
		for _, w := range r.Summary.Workflows {
			key := strings.ToLower(strings.TrimSpace(w))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			workflows = append(workflows, w)
		}
	}
	if len(workflows) == 0 {
		return
	}

	b.WriteString("## Business Logic\n\n")
	for _, w := range workflows {
		fmt.Fprintf(b, "- %s\n", w)
	}
	b.WriteString("\n")
}

// renderTechnicalSpecs lists rebuild specs ranked by priority bucket,
// preserving per-page order inside a bucket.
func renderTechnicalSpecs(b *strings.Builder, results []*analysis.PageResult) {
	type specRef struct {
		url  string
		spec analysis.RebuildSpec
	}
	buckets := map[analysis.Priority][]specRef{}
	for _, r := range results {
		if r.Features == nil {
			continue
		}
		for _, spec := range r.Features.RebuildSpecs {
			buckets[spec.Priority] = append(buckets[spec.Priority], specRef{url: r.URL, spec: spec})
		}
	}
	if len(buckets) == 0 {
		return
	}

	b.WriteString("## Technical Specifications\n\n")
	for _, p := range []analysis.Priority{analysis.PriorityHigh, analysis.PriorityMedium, analysis.PriorityLow} {
		refs := buckets[p]
		if len(refs) == 0 {
			continue
		}
		fmt.Fprintf(b, "### Priority: %s\n\n", p)
		b.WriteString("| Title | Page | Complexity | Description |\n|---|---|---|---|\n")
		for _, ref := range refs {
			fmt.Fprintf(b, "| %s | %s | %d | %s |\n",
				mdCell(ref.spec.Title), ref.url, ref.spec.Complexity, mdCell(ref.spec.Description))
		}
		b.WriteString("\n")
	}
}

// renderPartialResults surfaces pages whose analysis did not fully
// complete, with the error kind and whatever partial output survived.
func renderPartialResults(b *strings.Builder, results []*analysis.PageResult) {
	var degraded []*analysis.PageResult
	for _, r := range results {
		if !r.Succeeded() {
			degraded = append(degraded, r)
		}
	}
	if len(degraded) == 0 {
		return
	}

	b.WriteString("## Partial Results\n\n")
	for _, r := range degraded {
		fmt.Fprintf(b, "### %s\n\n", r.URL)
		fmt.Fprintf(b, "step1=%s, step2=%s\n\n", r.Step1, r.Step2)
		if r.Summary != nil {
			fmt.Fprintf(b, "Preserved summary: %s\n\n", r.Summary.Purpose)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(b, "- **%s**: %s\n", e.Kind, mdCell(e.Message))
		}
		b.WriteString("\n")
	}
}
