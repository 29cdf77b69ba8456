package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolSizeClamped(t *testing.T) {
	p := NewPool(PoolConfig{Size: 9})
	assert.Equal(t, maxPoolSize, cap(p.slots))

	p = NewPool(PoolConfig{})
	assert.Equal(t, defaultPoolSize, cap(p.slots))
}

func TestNavigationErrorClassification(t *testing.T) {
	timeout := &NavigationError{Kind: FailTimeout, URL: "https://example.com/"}
	httpErr := &NavigationError{Kind: FailHTTP, URL: "https://example.com/", Status: 404}
	crash := &NavigationError{Kind: FailCrash, URL: "https://example.com/", Msg: "target crashed"}

	assert.True(t, timeout.Retryable())
	assert.True(t, crash.Retryable())
	assert.False(t, httpErr.Retryable())
	assert.Contains(t, httpErr.Error(), "404")
}

func TestIsDestructive(t *testing.T) {
	cases := []struct {
		c    interactionCandidate
		want bool
	}{
		{interactionCandidate{Action: "click", Text: "Delete account"}, true},
		{interactionCandidate{Action: "click", Text: "Log out"}, true},
		{interactionCandidate{Action: "click", Selector: "#cancel-btn"}, true},
		{interactionCandidate{Action: "click", Text: "Show details", InForm: true}, true},
		{interactionCandidate{Action: "click", Text: "Show details"}, false},
		{interactionCandidate{Action: "hover", Text: "Products"}, false},
		{interactionCandidate{Action: "focus", Text: "Search"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isDestructive(tc.c), "%+v", tc.c)
	}
}

func TestIsAPIEvent(t *testing.T) {
	api := []*NetworkEvent{
		{URL: "https://example.com/api/users", Method: "GET"},
		{URL: "https://example.com/graphql", Method: "POST"},
		{URL: "https://example.com/v2/orders", Method: "GET"},
		{URL: "https://example.com/data", ContentType: "application/json"},
		{URL: "https://example.com/feed", ContentType: "application/xml"},
	}
	for _, e := range api {
		assert.True(t, isAPIEvent(e), e.URL)
	}

	notAPI := []*NetworkEvent{
		{URL: "https://example.com/app.js", ContentType: "application/javascript"},
		{URL: "https://example.com/style.css"},
		{URL: "https://example.com/logo.png?v=2"},
		{URL: "https://example.com/about", ContentType: "text/html"},
	}
	for _, e := range notAPI {
		assert.False(t, isAPIEvent(e), e.URL)
	}
}

func TestNavigateAndExtractRejectsInvalidURL(t *testing.T) {
	sess := &Session{ID: "s1", healthy: true}
	_, err := NavigateAndExtract(t.Context(), sess, "ftp://nope", DefaultNavigateOptions())
	assert.Error(t, err)
}

func TestSessionMetricsAccumulate(t *testing.T) {
	s := &Session{ID: "s1", healthy: true}
	s.metrics.SessionID = s.ID
	s.RecordPage(1200 * 1e6)
	s.RecordPage(800 * 1e6)
	assert.Equal(t, 2, s.metrics.Pages)
}
