// Package urlkit parses, normalizes, classifies, and slugifies URLs.
// Normalization is idempotent: normalizing an already-normalized URL
// yields the same string.
package urlkit

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// InvalidURLError reports a URL that failed normalization. Never retried.
type InvalidURLError struct {
	Raw    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.Raw, e.Reason)
}

// NormalizedURL is the canonical form of a URL: scheme and host lowercased,
// fragment stripped, query preserved, percent-encoding untouched.
type NormalizedURL struct {
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
	Domain string `json:"domain"` // registrable domain
}

// Normalize canonicalizes a raw URL. Requires scheme http or https and a
// non-empty host.
func Normalize(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NormalizedURL{}, &InvalidURLError{Raw: raw, Reason: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NormalizedURL{}, &InvalidURLError{Raw: raw, Reason: err.Error()}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return NormalizedURL{}, &InvalidURLError{Raw: raw, Reason: "scheme must be http or https"}
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return NormalizedURL{}, &InvalidURLError{Raw: raw, Reason: "missing host"}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	n := NormalizedURL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
		Query:  u.RawQuery,
		Domain: RegistrableDomain(host),
	}
	n.URL = n.Scheme + "://" + n.Host + n.Path
	if n.Query != "" {
		n.URL += "?" + n.Query
	}
	return n, nil
}

// RegistrableDomain returns the public-suffix-aware base domain for a
// host. Falls back to the bare host (ports stripped) when the public
// suffix list cannot classify it, e.g. localhost or IP literals.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// IsInternal reports whether the URL shares the seed's registrable domain.
func IsInternal(u NormalizedURL, rootDomain string) bool {
	return u.Domain != "" && strings.EqualFold(u.Domain, rootDomain)
}

// assetSuffixes is the fixed static-asset suffix set.
var assetSuffixes = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".ico": true, ".woff": true, ".woff2": true,
	".ttf": true, ".map": true, ".pdf": true,
}

// IsAsset reports whether the URL path ends with a recognized static-asset
// suffix.
func IsAsset(u NormalizedURL) bool {
	path := strings.ToLower(u.Path)
	if i := strings.LastIndex(path, "."); i >= 0 {
		return assetSuffixes[path[i:]]
	}
	return false
}

const slugMaxLen = 120

// Slugify derives a filesystem-safe identifier from host+path. Identical
// URLs always produce identical slugs; truncation to 120 chars appends a
// 6-char stable hash suffix so distinct long URLs cannot collide.
func Slugify(u NormalizedURL) string {
	var b strings.Builder
	for _, r := range u.Host + u.Path {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(collapseDashes(b.String()), "-")
	if slug == "" {
		slug = "root"
	}

	// Query-bearing URLs share a host+path slug with their bare form;
	// the hash suffix keeps them distinct.
	if u.Query != "" || len(slug) > slugMaxLen {
		suffix := stableHash(u.URL)
		if len(slug) > slugMaxLen-7 {
			slug = strings.Trim(slug[:slugMaxLen-7], "-")
		}
		slug = slug + "-" + suffix
	}
	return slug
}

func collapseDashes(s string) string {
	var b strings.Builder
	prev := false
	for _, r := range s {
		if r == '-' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stableHash returns a 6-hex-char FNV-1a digest of the full URL.
func stableHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%06x", h.Sum32()&0xffffff)
}
