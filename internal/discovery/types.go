// Package discovery turns a seed URL into a ranked, classified URL
// inventory using robots.txt, sitemaps, and a bounded same-domain crawl.
package discovery

import (
	"fmt"

	"webatlas/internal/urlkit"
)

// Source records which mechanism first produced a URL.
type Source string

const (
	SourceSeed         Source = "seed"
	SourceSitemap      Source = "sitemap"
	SourceRobotsSitemap Source = "robots-sitemap"
	SourceCrawl        Source = "crawl"
)

// DiscoveredURL is one inventory entry. Entries are read-only after
// discovery completes; the uniqueness key is Normalized.URL.
type DiscoveredURL struct {
	Normalized  urlkit.NormalizedURL `json:"normalized"`
	Source      Source               `json:"source"`
	Depth       int                  `json:"depth"`
	Internal    bool                 `json:"internal"`
	IsAsset     bool                 `json:"is_asset"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Complexity  int                  `json:"complexity_estimate,omitempty"` // 1..10
}

// Inventory is the ordered, deduplicated set of discovered URLs. The seed
// host is the authority for the Internal flag.
type Inventory struct {
	SeedURL    string          `json:"seed_url"`
	RootDomain string          `json:"root_domain"`
	Entries    []DiscoveredURL `json:"entries"`

	index map[string]int
}

// NewInventory creates an empty inventory for a seed.
func NewInventory(seed urlkit.NormalizedURL) *Inventory {
	return &Inventory{
		SeedURL:    seed.URL,
		RootDomain: seed.Domain,
		index:      make(map[string]int),
	}
}

// Add appends an entry unless its URL is already present, preserving
// first-seen order. Returns true if the entry was added.
func (inv *Inventory) Add(d DiscoveredURL) bool {
	if _, seen := inv.index[d.Normalized.URL]; seen {
		return false
	}
	d.Internal = urlkit.IsInternal(d.Normalized, inv.RootDomain)
	d.IsAsset = urlkit.IsAsset(d.Normalized)
	inv.index[d.Normalized.URL] = len(inv.Entries)
	inv.Entries = append(inv.Entries, d)
	return true
}

// Len returns the number of entries.
func (inv *Inventory) Len() int { return len(inv.Entries) }

// Pages returns internal non-asset entries in first-seen order.
func (inv *Inventory) Pages() []DiscoveredURL {
	out := make([]DiscoveredURL, 0, len(inv.Entries))
	for _, e := range inv.Entries {
		if e.Internal && !e.IsAsset {
			out = append(out, e)
		}
	}
	return out
}

// DiscoveryError reports a collectively failed discovery. Fatal only when
// the inventory carries zero URLs.
type DiscoveryError struct {
	Seed   string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %s", e.Seed, e.Reason)
}
