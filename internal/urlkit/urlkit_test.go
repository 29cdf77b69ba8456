package urlkit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBasics(t *testing.T) {
	n, err := Normalize("HTTPS://Example.COM/About?x=1#section")
	require.NoError(t, err)
	assert.Equal(t, "https", n.Scheme)
	assert.Equal(t, "example.com", n.Host)
	assert.Equal(t, "/About", n.Path)
	assert.Equal(t, "x=1", n.Query)
	assert.Equal(t, "https://example.com/About?x=1", n.URL)
	assert.Equal(t, "example.com", n.Domain)
}

func TestNormalizeEmptyPathBecomesRoot(t *testing.T) {
	n, err := Normalize("http://example.com")
	require.NoError(t, err)
	assert.Equal(t, "/", n.Path)
	assert.Equal(t, "http://example.com/", n.URL)
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{
		"https://Example.com/a/b?q=2#frag",
		"http://sub.Example.co.uk/path%20x",
		"https://example.com",
	} {
		n1, err := Normalize(raw)
		require.NoError(t, err, raw)
		n2, err := Normalize(n1.URL)
		require.NoError(t, err, raw)
		assert.Equal(t, n1.URL, n2.URL, raw)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/x", "mailto:a@b.c", "/relative/only", "https://"} {
		_, err := Normalize(raw)
		assert.Error(t, err, raw)
		assert.IsType(t, &InvalidURLError{}, err, raw)
	}
}

func TestNormalizePreservesPercentEncoding(t *testing.T) {
	n, err := Normalize("https://example.com/a%2Fb?x=%20")
	require.NoError(t, err)
	assert.Contains(t, n.URL, "a%2Fb")
	assert.Contains(t, n.URL, "x=%20")
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.com", RegistrableDomain("www.example.com"))
	assert.Equal(t, "example.co.uk", RegistrableDomain("shop.example.co.uk"))
	assert.Equal(t, "example.com", RegistrableDomain("example.com:8080"))
	assert.Equal(t, "localhost", RegistrableDomain("localhost"))
}

func TestIsInternal(t *testing.T) {
	n, err := Normalize("https://blog.example.com/post")
	require.NoError(t, err)
	assert.True(t, IsInternal(n, "example.com"))
	assert.False(t, IsInternal(n, "other.com"))
}

func TestIsAsset(t *testing.T) {
	asset := []string{
		"https://example.com/app.js",
		"https://example.com/style.CSS",
		"https://example.com/font.woff2",
		"https://example.com/doc.pdf",
	}
	for _, raw := range asset {
		n, err := Normalize(raw)
		require.NoError(t, err)
		assert.True(t, IsAsset(n), raw)
	}
	page := []string{
		"https://example.com/about",
		"https://example.com/products.html",
		"https://example.com/",
	}
	for _, raw := range page {
		n, err := Normalize(raw)
		require.NoError(t, err)
		assert.False(t, IsAsset(n), raw)
	}
}

func TestSlugifyStable(t *testing.T) {
	n, err := Normalize("https://example.com/about/team")
	require.NoError(t, err)
	assert.Equal(t, "example-com-about-team", Slugify(n))
	assert.Equal(t, Slugify(n), Slugify(n))
}

func TestSlugifyQueryVariantsDiffer(t *testing.T) {
	a, err := Normalize("https://example.com/search?q=a")
	require.NoError(t, err)
	b, err := Normalize("https://example.com/search?q=b")
	require.NoError(t, err)
	bare, err := Normalize("https://example.com/search")
	require.NoError(t, err)

	assert.NotEqual(t, Slugify(a), Slugify(b))
	assert.NotEqual(t, Slugify(a), Slugify(bare))
}

func TestSlugifyLongURLCapped(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("segment/", 40)
	n, err := Normalize(long)
	require.NoError(t, err)
	slug := Slugify(n)
	assert.LessOrEqual(t, len(slug), 120)

	// A different long URL must not collide.
	other, err := Normalize(long + "x")
	require.NoError(t, err)
	assert.NotEqual(t, slug, Slugify(other))
}

func TestSlugifyRootPath(t *testing.T) {
	n, err := Normalize("https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "example-com", Slugify(n))
}
