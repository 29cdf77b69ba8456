package discovery

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
)

// FilterMode resolves precedence when both pattern lists are present.
type FilterMode string

const (
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// Options configures the discovery pipeline.
type Options struct {
	MaxDepth        int
	MaxCrawlPages   int
	MinSitemapPages int // below this, the crawler augments the sitemap
	Timeout         time.Duration
	IncludePatterns []string
	ExcludePatterns []string
	FilterMode      FilterMode

	// HTTPClient overrides the default client; tests inject httptest here.
	HTTPClient *http.Client
}

const defaultMinSitemapPages = 5

// Pipeline composes robots, sitemap, and crawl discovery into a single
// ranked inventory.
type Pipeline struct {
	client *http.Client
	opts   Options
}

// NewPipeline builds a discovery pipeline.
func NewPipeline(opts Options) *Pipeline {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.MinSitemapPages <= 0 {
		opts.MinSitemapPages = defaultMinSitemapPages
	}
	return &Pipeline{client: client, opts: opts}
}

// Discover builds the URL inventory for a seed. Source order is fixed:
// seed, robots-advertised sitemaps, conventional sitemap, then a crawl
// when the sitemaps produced fewer than MinSitemapPages internal pages.
// Zero discovered URLs (seed unreachable included) is a DiscoveryError.
func (p *Pipeline) Discover(ctx context.Context, seedRaw string) (*Inventory, error) {
	log := logging.Discovery()

	seed, err := urlkit.Normalize(seedRaw)
	if err != nil {
		return nil, err
	}
	inv := NewInventory(seed)
	inv.Add(DiscoveredURL{Normalized: seed, Source: SourceSeed, Depth: 0})

	rootURL := seed.Scheme + "://" + seed.Host
	robots := AnalyzeRobots(ctx, p.client, rootURL)

	for _, n := range FetchSitemaps(ctx, p.client, robots.SitemapURLs) {
		inv.Add(DiscoveredURL{Normalized: n, Source: SourceRobotsSitemap, Depth: 0})
	}
	// The conventional location is tried even when robots.txt advertised
	// nothing; duplicate URLs dedupe on add.
	for _, n := range FetchSitemaps(ctx, p.client, []string{rootURL + "/sitemap.xml"}) {
		inv.Add(DiscoveredURL{Normalized: n, Source: SourceSitemap, Depth: 0})
	}

	if len(inv.Pages()) < p.opts.MinSitemapPages {
		log.Info("sitemap inventory short, crawling",
			zap.Int("sitemap_pages", len(inv.Pages())),
			zap.Int("min", p.opts.MinSitemapPages))
		pages, err := Crawl(ctx, p.client, seed, CrawlOptions{
			MaxDepth:        p.opts.MaxDepth,
			MaxPages:        p.opts.MaxCrawlPages,
			RespectDisallow: true,
			Disallow:        robots.DisallowPatterns,
		})
		if err != nil && len(pages) == 0 && inv.Len() <= 1 {
			return nil, &DiscoveryError{Seed: seed.URL, Reason: err.Error()}
		}
		for _, pg := range pages {
			if inv.Add(DiscoveredURL{
				Normalized:  pg.url,
				Source:      SourceCrawl,
				Depth:       pg.depth,
				Title:       pg.title,
				Description: pg.description,
			}) {
				continue
			}
			// Already known from a sitemap: backfill the cheap heuristics.
			idx := inv.index[pg.url.URL]
			if inv.Entries[idx].Title == "" {
				inv.Entries[idx].Title = pg.title
			}
			if inv.Entries[idx].Description == "" {
				inv.Entries[idx].Description = pg.description
			}
		}
		// A crawl that could not even fetch the seed leaves only the seed
		// entry; treat that as discovery failure when sitemaps were empty too.
		if len(pages) == 0 && inv.Len() <= 1 {
			if _, ferr := fetchPage(ctx, p.client, seed); ferr != nil {
				return nil, &DiscoveryError{Seed: seed.URL, Reason: "seed unreachable"}
			}
		}
	}

	for i := range inv.Entries {
		inv.Entries[i].Complexity = complexityEstimate(inv.Entries[i].Normalized)
	}

	log.Info("discovery complete",
		zap.String("seed", seed.URL),
		zap.Int("urls", inv.Len()),
		zap.Int("pages", len(inv.Pages())))
	return inv, nil
}

// ApplyFilters returns the entries surviving the caller's glob patterns.
// Filters run after discovery and before page selection; mode picks which
// list wins when both are supplied.
func ApplyFilters(entries []DiscoveredURL, include, exclude []string, mode FilterMode) []DiscoveredURL {
	if len(include) == 0 && len(exclude) == 0 {
		return entries
	}
	if mode == "" {
		if len(include) > 0 {
			mode = FilterInclude
		} else {
			mode = FilterExclude
		}
	}

	out := make([]DiscoveredURL, 0, len(entries))
	for _, e := range entries {
		switch mode {
		case FilterInclude:
			if matchesAny(e.Normalized, include) {
				out = append(out, e)
			}
		case FilterExclude:
			if !matchesAny(e.Normalized, exclude) {
				out = append(out, e)
			}
		}
	}
	return out
}

func matchesAny(u urlkit.NormalizedURL, patterns []string) bool {
	for _, p := range patterns {
		if globMatch(p, u.Path) || globMatch(p, u.URL) {
			return true
		}
	}
	return false
}

// globMatch matches the whole string; '*' spans any run of characters
// including slashes, '?' matches one character.
func globMatch(pattern, s string) bool {
	return globMatchAt(pattern, s)
}

func globMatchAt(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			pattern = strings.TrimLeft(pattern, "*")
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchAt(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if s == "" || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}

// complexityEstimate scores a URL 1..10 from path depth, query parameter
// count, and asset hints.
func complexityEstimate(u urlkit.NormalizedURL) int {
	score := 1

	depth := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			depth++
		}
	}
	score += depth
	if score > 6 {
		score = 6
	}

	if u.Query != "" {
		params := strings.Count(u.Query, "&") + 1
		score += params
	}
	if urlkit.IsAsset(u) {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}
