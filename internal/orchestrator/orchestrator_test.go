package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/analysis"
	"webatlas/internal/artifacts"
	"webatlas/internal/browser"
	"webatlas/internal/config"
	"webatlas/internal/discovery"
	"webatlas/internal/llm"
)

const summaryJSON = `{
  "purpose": "Pricing page presenting subscription tiers with a checkout form and plan comparison table",
  "user_context": "Prospective customers comparing plans before starting a paid subscription online",
  "business_logic": "Plan selection drives the checkout api call; annual billing applies a discount validation rule",
  "navigation_role": "Conversion page linked from the main navigation and the homepage hero button",
  "business_importance": 0.9,
  "confidence": 0.8,
  "workflows": ["select plan", "start checkout session"],
  "journey_stage": "conversion",
  "keywords": ["pricing", "plans"]
}`

const featuresJSON = `{
  "interactive_elements": [
    {"type": "button", "selector": "#buy-pro", "purpose": "Starts checkout session for the Pro plan"}
  ],
  "functional_capabilities": ["Plan comparison table rendered from a JSON api response with http caching"],
  "api_integrations": [
    {"method": "POST", "endpoint": "https://example.com/api/checkout", "purpose": "Create checkout session with plan id", "auth": "required"}
  ],
  "business_rules": ["Annual billing applies a discount validated server side before checkout"],
  "rebuild_specs": [
    {"title": "Checkout flow", "description": "Rebuild the checkout form posting to the api endpoint with session auth and validation", "complexity": 5, "interactive": true}
  ],
  "overall_confidence": 0.85,
  "context_ref": "placeholder"
}`

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		Step1Model:         "gpt-4o-mini",
		Step2Model:         "gpt-4o",
		FallbackModel:      "claude-3-5-haiku",
		OpenAIKey:          "k",
		AnthropicKey:       "k",
		OutputRoot:         t.TempDir(),
		MaxConcurrentPages: 1,
	}
}

// fakeNavigator synthesizes snapshots without a browser.
type fakeNavigator struct {
	mu       sync.Mutex
	captured []string
	failFor  map[string]error
}

func (n *fakeNavigator) Capture(_ context.Context, url string) (*browser.PageSnapshot, error) {
	n.mu.Lock()
	n.captured = append(n.captured, url)
	n.mu.Unlock()
	if err, ok := n.failFor[url]; ok {
		return nil, err
	}
	return &browser.PageSnapshot{
		URL:         url,
		FinalURL:    url,
		StatusCode:  200,
		Title:       "Page " + url,
		VisibleText: "Example content with a checkout form and api calls",
		Meta:        map[string]string{"description": "test page"},
		DOMStats:    browser.DOMStats{Nodes: 100, Forms: 1, Buttons: 2},
	}, nil
}

func (n *fakeNavigator) Metrics() []browser.SessionMetrics { return nil }
func (n *fakeNavigator) Close()                            {}

// promptAwareCaller answers step-1 prompts with the summary and step-2
// prompts with the features payload; badStep2For pages get junk on step 2.
type promptAwareCaller struct {
	mu          sync.Mutex
	badStep2For string
	calls       int
}

func (c *promptAwareCaller) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	prompt := req.Messages[len(req.Messages)-1].Content
	isStep2 := strings.Contains(prompt, "context_ref")
	if isStep2 {
		if c.badStep2For != "" && strings.Contains(prompt, c.badStep2For) {
			return &llm.ChatResponse{Content: "malformed {{{", ModelID: req.ModelID}, nil
		}
		return &llm.ChatResponse{Content: featuresJSON, ModelID: req.ModelID}, nil
	}
	return &llm.ChatResponse{Content: summaryJSON, ModelID: req.ModelID}, nil
}

// fourPageSite serves robots + sitemap with four pages.
func fourPageSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", srv.URL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/</loc></url>
  <url><loc>%[1]s/about</loc></url>
  <url><loc>%[1]s/contact</loc></url>
  <url><loc>%[1]s/pricing</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>t</title></head><body>ok</body></html>"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOrchestrator(t *testing.T, srv *httptest.Server, caller analysis.ChatCaller, nav Navigator) (*Orchestrator, *config.Settings) {
	t.Helper()
	settings := testSettings(t)
	pipeline := discovery.NewPipeline(discovery.Options{HTTPClient: srv.Client(), MinSitemapPages: 2})
	return New(settings, caller, nav, pipeline), settings
}

func TestAnalyzeLegacySiteHappyPath(t *testing.T) {
	srv := fourPageSite(t)
	nav := &fakeNavigator{}
	o, settings := newTestOrchestrator(t, srv, &promptAwareCaller{}, nav)

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:   srv.URL,
		Mode:      ModeRecommended,
		ProjectID: "happy",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Counts.Completed)
	assert.Equal(t, 0, result.Counts.Failed)
	assert.NotNil(t, result.Estimate)
	assert.Greater(t, result.Estimate.USD, 0.0)

	// Four per-page markdowns on disk.
	store, err := artifacts.NewStore(settings.OutputRoot, "happy")
	require.NoError(t, err)
	slugs, err := store.ListPageMarkdown()
	require.NoError(t, err)
	assert.Len(t, slugs, 4)

	// Master report has four page sections.
	report, err := store.ReadMasterReport()
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(report, "### "+srv.URL))

	meta, err := store.ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Counts.Total)
	assert.Equal(t, 4, meta.Counts.Completed)
	assert.Equal(t, 0, meta.Counts.Failed)

	// Cost estimate persisted.
	_, err = os.Stat(filepath.Join(store.Dir(), "reports", "cost-estimate.md"))
	require.NoError(t, err)
}

func TestAnalyzeLegacySiteStep2Degraded(t *testing.T) {
	srv := fourPageSite(t)
	nav := &fakeNavigator{}
	caller := &promptAwareCaller{badStep2For: "/pricing"}
	o, settings := newTestOrchestrator(t, srv, caller, nav)

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:   srv.URL,
		Mode:      ModeRecommended,
		ProjectID: "degraded",
	})
	require.NoError(t, err)
	// The workflow completes; the degraded page counts as failed at the
	// workflow level but its step-1 summary is preserved.
	assert.Equal(t, 4, result.Counts.Total())

	store, err := artifacts.NewStore(settings.OutputRoot, "degraded")
	require.NoError(t, err)

	var pricingSlug string
	slugs, err := store.ListPageMarkdown()
	require.NoError(t, err)
	for _, s := range slugs {
		if strings.Contains(s, "pricing") {
			pricingSlug = s
		}
	}
	require.NotEmpty(t, pricingSlug)

	r, err := store.ReadPageResult(pricingSlug)
	require.NoError(t, err)
	assert.Equal(t, analysis.StepPartial, r.Step1)
	assert.Equal(t, analysis.StepFailed, r.Step2)
	require.NotNil(t, r.Summary)

	report, err := store.ReadMasterReport()
	require.NoError(t, err)
	assert.Contains(t, report, "## Partial Results")
	assert.Contains(t, report, "/pricing")
}

func TestAnalyzeLegacySitePatternFilter(t *testing.T) {
	srv := fourPageSite(t)
	nav := &fakeNavigator{}
	o, _ := newTestOrchestrator(t, srv, &promptAwareCaller{}, nav)

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:        srv.URL,
		Mode:           ModeRecommended,
		ProjectID:      "filtered",
		ExcludePattern: []string{"/pricing*", "/about*"},
		FilterMode:     discovery.FilterExclude,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts.Total())

	nav.mu.Lock()
	defer nav.mu.Unlock()
	for _, u := range nav.captured {
		assert.NotContains(t, u, "/pricing")
		assert.NotContains(t, u, "/about")
	}
}

func TestAnalyzeLegacySiteQuickModeSkipsStep2(t *testing.T) {
	srv := fourPageSite(t)
	caller := &promptAwareCaller{}
	o, settings := newTestOrchestrator(t, srv, caller, &fakeNavigator{})

	_, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:   srv.URL,
		Mode:      ModeQuick,
		ProjectID: "quick",
	})
	require.NoError(t, err)

	store, err := artifacts.NewStore(settings.OutputRoot, "quick")
	require.NoError(t, err)
	slugs, err := store.ListPageMarkdown()
	require.NoError(t, err)
	for _, slug := range slugs {
		r, err := store.ReadPageResult(slug)
		require.NoError(t, err)
		assert.Equal(t, analysis.StepSkipped, r.Step2, slug)
	}
	// One LLM call per page, none for step 2.
	assert.Equal(t, 4, caller.calls)
}

func TestAnalyzeLegacySiteInteractiveDeclineDiscovery(t *testing.T) {
	srv := fourPageSite(t)
	o, _ := newTestOrchestrator(t, srv, &promptAwareCaller{}, &fakeNavigator{})

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:     srv.URL,
		Interactive: true,
		Confirm:     func(stage, detail string) bool { return stage != "discovery" },
	})
	require.NoError(t, err)
	assert.Equal(t, "discovery", result.Aborted)
}

func TestAnalyzeLegacySiteInteractiveDeclinesStep2ForOnePage(t *testing.T) {
	srv := fourPageSite(t)
	o, settings := newTestOrchestrator(t, srv, &promptAwareCaller{}, &fakeNavigator{})

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:     srv.URL,
		Mode:        ModeRecommended,
		ProjectID:   "interactive",
		Interactive: true,
		Confirm: func(stage, detail string) bool {
			if stage == "step2" && strings.Contains(detail, "/contact") {
				return false
			}
			return true
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Counts.Completed)

	store, err := artifacts.NewStore(settings.OutputRoot, "interactive")
	require.NoError(t, err)
	slugs, err := store.ListPageMarkdown()
	require.NoError(t, err)
	for _, slug := range slugs {
		r, err := store.ReadPageResult(slug)
		require.NoError(t, err)
		if strings.Contains(slug, "contact") {
			assert.Equal(t, analysis.StepSkipped, r.Step2)
		} else {
			assert.Equal(t, analysis.StepDone, r.Step2)
		}
	}
}

func TestAnalyzePageListExplicitURLs(t *testing.T) {
	o, settings := newTestOrchestrator(t, fourPageSite(t), &promptAwareCaller{}, &fakeNavigator{})

	result, err := o.AnalyzePageList(context.Background(), "explicit",
		[]string{"https://example.com/a", "https://example.com/b"}, true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts.Completed)

	status, err := ProjectStatus(settings, "explicit")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Counts.Completed)
	assert.True(t, status.HasReport)
}

func TestNavigationFailureRecordedAsPageResult(t *testing.T) {
	srv := fourPageSite(t)
	nav := &fakeNavigator{failFor: map[string]error{}}
	o, settings := newTestOrchestrator(t, srv, &promptAwareCaller{}, nav)

	// The contact page 404s.
	contact := srv.URL + "/contact"
	nav.failFor[contact] = &browser.NavigationError{Kind: browser.FailHTTP, URL: contact, Status: 404}

	result, err := o.AnalyzeLegacySite(context.Background(), Request{
		SeedURL:   srv.URL,
		ProjectID: "navfail",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Failed)
	assert.Equal(t, 3, result.Counts.Completed)

	store, err := artifacts.NewStore(settings.OutputRoot, "navfail")
	require.NoError(t, err)
	slugs, err := store.ListPageMarkdown()
	require.NoError(t, err)
	for _, slug := range slugs {
		if !strings.Contains(slug, "contact") {
			continue
		}
		r, rerr := store.ReadPageResult(slug)
		require.NoError(t, rerr)
		assert.Equal(t, analysis.StepFailed, r.Step1)
		assert.Equal(t, analysis.StepSkipped, r.Step2)
		require.NotEmpty(t, r.Errors)
		assert.Equal(t, "NavigationFailure", r.Errors[0].Kind)
	}
}

func TestSelectPagesDeterministicOrder(t *testing.T) {
	srv := fourPageSite(t)
	pipeline := discovery.NewPipeline(discovery.Options{HTTPClient: srv.Client(), MinSitemapPages: 2})

	inv1, err := pipeline.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	inv2, err := pipeline.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	sel1 := selectPages(inv1, nil, nil, "", nil, 10)
	sel2 := selectPages(inv2, nil, nil, "", nil, 10)
	require.Equal(t, len(sel1), len(sel2))
	for i := range sel1 {
		assert.Equal(t, sel1[i].Normalized.URL, sel2[i].Normalized.URL)
	}

	// The root page ranks first: top journey weight and zero depth.
	assert.Equal(t, "/", sel1[0].Normalized.Path)
}

func TestModePresets(t *testing.T) {
	n, step2 := modePreset(ModeQuick, 0)
	assert.Equal(t, 10, n)
	assert.False(t, step2)

	n, step2 = modePreset(ModeRecommended, 0)
	assert.Equal(t, 20, n)
	assert.True(t, step2)

	n, _ = modePreset(ModeComprehensive, 0)
	assert.Equal(t, 50, n)

	n, _ = modePreset(ModeTargeted, 7)
	assert.Equal(t, 7, n)

	// Requested below the preset wins; above is capped.
	n, _ = modePreset(ModeQuick, 3)
	assert.Equal(t, 3, n)
	n, _ = modePreset(ModeQuick, 99)
	assert.Equal(t, 10, n)
}

func TestEstimateCost(t *testing.T) {
	settings := testSettings(t)
	withStep2, err := estimateCost(settings, 10, true, CostBalanced)
	require.NoError(t, err)
	withoutStep2, err := estimateCost(settings, 10, false, CostBalanced)
	require.NoError(t, err)

	assert.Greater(t, withStep2.USD, withoutStep2.USD)
	assert.Equal(t, "gpt-4o-mini", withStep2.Step1Model)
}
