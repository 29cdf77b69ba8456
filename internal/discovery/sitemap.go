package discovery

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"

	"go.uber.org/zap"

	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
)

const (
	maxSitemapBytes = 10 << 20
	maxSitemapDepth = 5
)

// sitemapDoc decodes both <urlset> and <sitemapindex> documents; lastmod
// and priority are deliberately ignored.
type sitemapDoc struct {
	XMLName  xml.Name `xml:""`
	URLs     []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// FetchSitemaps retrieves and flattens the given sitemap URLs, following
// sitemap indexes recursively up to five levels. Fetch failures on
// individual sitemaps are logged and skipped; the remainder still counts.
func FetchSitemaps(ctx context.Context, client *http.Client, sitemapURLs []string) []urlkit.NormalizedURL {
	var out []urlkit.NormalizedURL
	seen := make(map[string]bool)
	for _, sm := range sitemapURLs {
		fetchSitemap(ctx, client, sm, 0, seen, &out)
	}
	return out
}

func fetchSitemap(ctx context.Context, client *http.Client, rawURL string, depth int, seen map[string]bool, out *[]urlkit.NormalizedURL) {
	log := logging.Discovery()
	if depth > maxSitemapDepth || seen[rawURL] {
		return
	}
	seen[rawURL] = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		log.Warn("sitemap fetch failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("sitemap fetch failed", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		log.Warn("sitemap parse failed", zap.String("url", rawURL), zap.Error(err))
		return
	}

	for _, child := range doc.Sitemaps {
		if child.Loc != "" {
			fetchSitemap(ctx, client, child.Loc, depth+1, seen, out)
		}
	}
	for _, entry := range doc.URLs {
		n, err := urlkit.Normalize(entry.Loc)
		if err != nil {
			continue
		}
		*out = append(*out, n)
	}
}
