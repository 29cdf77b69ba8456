// Package orchestrator composes discovery, browsing, analysis, the
// workflow engine, and documentation into the end-to-end
// analyze-legacy-site operation.
package orchestrator

import (
	"sort"
	"strings"

	"webatlas/internal/discovery"
)

// Mode is the analysis depth preset.
type Mode string

const (
	ModeQuick         Mode = "quick"
	ModeRecommended   Mode = "recommended"
	ModeComprehensive Mode = "comprehensive"
	ModeTargeted      Mode = "targeted"
)

// CostPriority expresses the caller's speed/cost tradeoff; recorded on
// the cost estimate and metadata.
type CostPriority string

const (
	CostSpeed     CostPriority = "speed"
	CostBalanced  CostPriority = "balanced"
	CostEfficient CostPriority = "cost_efficient"
)

// modePreset returns (maxPages, step2Default) for a mode.
func modePreset(mode Mode, requestedMax int) (int, bool) {
	switch mode {
	case ModeQuick:
		return capOrDefault(requestedMax, 10), false
	case ModeComprehensive:
		return capOrDefault(requestedMax, 50), true
	case ModeTargeted:
		if requestedMax <= 0 {
			requestedMax = 20
		}
		return requestedMax, true
	default: // recommended
		return capOrDefault(requestedMax, 20), true
	}
}

func capOrDefault(requested, preset int) int {
	if requested <= 0 || requested > preset {
		return preset
	}
	return requested
}

// conversionKeywords mark pages likely to sit at the conversion end of
// the journey; they outrank plain content pages.
var conversionKeywords = []string{
	"checkout", "cart", "signup", "sign-up", "register", "pricing",
	"subscribe", "order", "payment", "buy", "quote", "contact",
}

var entryKeywords = []string{"login", "sign-in", "signin", "home", "index", "search"}

// journeyWeight estimates a page's journey position from its path alone;
// discovery runs before any LLM pass, so this is a URL heuristic.
func journeyWeight(path string) float64 {
	lower := strings.ToLower(path)
	if lower == "/" || lower == "" {
		return 1.0
	}
	for _, kw := range conversionKeywords {
		if strings.Contains(lower, kw) {
			return 0.95
		}
	}
	for _, kw := range entryKeywords {
		if strings.Contains(lower, kw) {
			return 0.75
		}
	}
	return 0.5
}

// pageScore ranks a page for selection: journey-stage weight, complexity
// estimate, path-depth closeness to root, and focus-area keyword match.
func pageScore(d discovery.DiscoveredURL, focusAreas []string) float64 {
	js := journeyWeight(d.Normalized.Path)

	depth := 0
	for _, seg := range strings.Split(d.Normalized.Path, "/") {
		if seg != "" {
			depth++
		}
	}
	closeness := 1.0 / float64(1+depth)

	complexity := float64(d.Complexity) / 10

	focus := 0.0
	if len(focusAreas) > 0 {
		haystack := strings.ToLower(d.Normalized.URL + " " + d.Title + " " + d.Description)
		for _, area := range focusAreas {
			if area != "" && strings.Contains(haystack, strings.ToLower(area)) {
				focus = 1.0
				break
			}
		}
	}

	return 0.35*js + 0.25*closeness + 0.2*complexity + 0.2*focus
}

// selectPages filters, ranks, and caps the inventory's internal pages.
// max_pages applies AFTER filtering. The sort is stable, so equal scores
// keep discovery order.
func selectPages(inv *discovery.Inventory, include, exclude []string, mode discovery.FilterMode, focusAreas []string, maxPages int) []discovery.DiscoveredURL {
	pages := discovery.ApplyFilters(inv.Pages(), include, exclude, mode)

	sort.SliceStable(pages, func(i, j int) bool {
		return pageScore(pages[i], focusAreas) > pageScore(pages[j], focusAreas)
	})

	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages
}
