package discovery

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"webatlas/internal/logging"
)

// RobotsResult holds the subset of robots.txt webatlas cares about:
// disallow patterns for the wildcard agent and advertised sitemap URLs.
type RobotsResult struct {
	DisallowPatterns []string
	SitemapURLs      []string
}

const maxRobotsBytes = 512 * 1024

// AnalyzeRobots fetches and parses <root>/robots.txt. A missing or
// unreachable robots.txt yields an empty result, not an error.
func AnalyzeRobots(ctx context.Context, client *http.Client, rootURL string) RobotsResult {
	log := logging.Discovery()
	robotsURL := strings.TrimRight(rootURL, "/") + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return RobotsResult{}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		log.Debug("robots.txt unreachable", zap.String("url", robotsURL), zap.Error(err))
		return RobotsResult{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug("robots.txt absent", zap.String("url", robotsURL), zap.Int("status", resp.StatusCode))
		return RobotsResult{}
	}

	result := parseRobots(io.LimitReader(resp.Body, maxRobotsBytes))
	log.Info("robots.txt parsed",
		zap.Int("disallow_patterns", len(result.DisallowPatterns)),
		zap.Int("sitemaps", len(result.SitemapURLs)))
	return result
}

// parseRobots extracts Disallow lines applying to User-agent: * and all
// Sitemap lines (which are agent-independent per the robots spec).
func parseRobots(r io.Reader) RobotsResult {
	var res RobotsResult
	scanner := bufio.NewScanner(r)
	inWildcardGroup := false

	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			inWildcardGroup = value == "*"
		case "disallow":
			if inWildcardGroup && value != "" {
				res.DisallowPatterns = append(res.DisallowPatterns, value)
			}
		case "sitemap":
			if value != "" {
				res.SitemapURLs = append(res.SitemapURLs, value)
			}
		}
	}
	return res
}

// Disallowed reports whether a path matches any disallow pattern. Patterns
// are prefix matches with "*" wildcards and "$" end anchors, per the de
// facto robots.txt dialect.
func Disallowed(path string, patterns []string) bool {
	for _, p := range patterns {
		if matchRobotsPattern(path, p) {
			return true
		}
	}
	return false
}

func matchRobotsPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			if !strings.HasPrefix(path, part) {
				return false
			}
			pos = len(part)
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}
	if anchored {
		if pattern == "" || strings.HasSuffix(pattern, "*") {
			return true
		}
		// The final literal must close out the path.
		return pos == len(path)
	}
	return true
}
