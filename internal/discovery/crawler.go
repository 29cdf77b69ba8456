package discovery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
)

const (
	userAgent    = "webatlas/1.0 (legacy site analysis)"
	maxPageBytes = 2 << 20
)

// CrawlOptions bounds a breadth-first same-domain crawl.
type CrawlOptions struct {
	MaxDepth        int
	MaxPages        int
	RespectDisallow bool
	Disallow        []string
	IncludeAssets   bool
	// RequestsPerSecond throttles fetches; zero means 4 rps.
	RequestsPerSecond float64
}

// crawledPage is a fetched page plus the heuristics the pipeline wants.
type crawledPage struct {
	url         urlkit.NormalizedURL
	depth       int
	title       string
	description string
	links       []urlkit.NormalizedURL
}

// Crawl walks the site breadth-first from root, visiting only pages on the
// seed's registrable domain. Fragments are stripped by normalization,
// assets are skipped unless requested, and the walk aborts once MaxPages
// pages have been fetched.
func Crawl(ctx context.Context, client *http.Client, root urlkit.NormalizedURL, opts CrawlOptions) ([]crawledPage, error) {
	log := logging.Discovery()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	type queued struct {
		u     urlkit.NormalizedURL
		depth int
	}
	queue := []queued{{u: root, depth: 0}}
	visited := map[string]bool{root.URL: true}
	var pages []crawledPage

	for len(queue) > 0 && len(pages) < opts.MaxPages {
		item := queue[0]
		queue = queue[1:]

		if err := limiter.Wait(ctx); err != nil {
			return pages, err
		}

		page, err := fetchPage(ctx, client, item.u)
		if err != nil {
			log.Debug("crawl fetch skipped", zap.String("url", item.u.URL), zap.Error(err))
			continue
		}
		page.depth = item.depth
		pages = append(pages, *page)

		if item.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range page.links {
			if visited[link.URL] {
				continue
			}
			visited[link.URL] = true
			if !urlkit.IsInternal(link, root.Domain) {
				continue
			}
			if !opts.IncludeAssets && urlkit.IsAsset(link) {
				continue
			}
			if opts.RespectDisallow && Disallowed(link.Path, opts.Disallow) {
				continue
			}
			queue = append(queue, queued{u: link, depth: item.depth + 1})
		}
	}

	log.Info("crawl complete", zap.String("root", root.URL), zap.Int("pages", len(pages)))
	return pages, nil
}

// fetchPage GETs one page and extracts title, meta description, and links.
func fetchPage(ctx context.Context, client *http.Client, u urlkit.NormalizedURL) (*crawledPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{Seed: u.URL, Reason: resp.Status}
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return nil, &DiscoveryError{Seed: u.URL, Reason: "not html: " + ct}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	page := &crawledPage{url: u}
	base, _ := url.Parse(u.URL)
	extractPageData(doc, base, page)
	return page, nil
}

func extractPageData(doc *html.Node, base *url.URL, page *crawledPage) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.title == "" && n.FirstChild != nil {
					page.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, content string
				for _, a := range n.Attr {
					switch strings.ToLower(a.Key) {
					case "name":
						name = strings.ToLower(a.Val)
					case "content":
						content = a.Val
					}
				}
				if name == "description" && page.description == "" {
					page.description = strings.TrimSpace(content)
				}
			case "a":
				for _, a := range n.Attr {
					if a.Key != "href" {
						continue
					}
					if link, ok := resolveLink(base, a.Val); ok {
						page.links = append(page.links, link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

// resolveLink resolves an href against the page URL and normalizes it.
// Fragments, javascript:, mailto: and malformed links resolve to nothing.
func resolveLink(base *url.URL, href string) (urlkit.NormalizedURL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return urlkit.NormalizedURL{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return urlkit.NormalizedURL{}, false
	}
	abs := base.ResolveReference(ref)
	n, err := urlkit.Normalize(abs.String())
	if err != nil {
		return urlkit.NormalizedURL{}, false
	}
	return n, true
}
