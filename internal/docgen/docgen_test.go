package docgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/analysis"
	"webatlas/internal/artifacts"
)

func sampleResult(slug, url string) *analysis.PageResult {
	return &analysis.PageResult{
		PageID: slug,
		URL:    url,
		Step1:  analysis.StepDone,
		Step2:  analysis.StepDone,
		Summary: &analysis.ContentSummary{
			ID:                 slug + "-summary",
			Purpose:            "Sells the product",
			BusinessImportance: 0.9,
			Confidence:         0.8,
			JourneyStage:       analysis.StageConversion,
			Workflows:          []string{"select plan", "checkout"},
			Quality:            analysis.QualityBreakdown{Overall: 0.8, Completeness: 0.9, Specificity: 0.7, Depth: 0.8},
		},
		Features: &analysis.FeatureAnalysis{
			InteractiveElements: []analysis.InteractiveElement{
				{Type: "button", Selector: "#buy", Purpose: "Start checkout"},
			},
			APIIntegrations: []analysis.APIIntegration{
				{Method: "POST", Endpoint: "/api/checkout", Purpose: "Create session", Auth: "required"},
			},
			RebuildSpecs: []analysis.RebuildSpec{
				{Title: "Checkout", Description: "Rebuild checkout", Complexity: 5, Interactive: true, Priority: analysis.PriorityHigh},
			},
			OverallConfidence: 0.85,
			QualityScore:      0.8,
			ContextRef:        slug + "-summary",
		},
	}
}

func TestRenderPageMarkdown(t *testing.T) {
	md := RenderPageMarkdown(sampleResult("example-com-pricing", "https://example.com/pricing"))

	assert.Contains(t, md, "# Page: https://example.com/pricing")
	assert.Contains(t, md, "## Content Summary")
	assert.Contains(t, md, "## Feature Analysis")
	assert.Contains(t, md, "| button | `#buy` | Start checkout |")
	assert.Contains(t, md, "| POST | `/api/checkout` | Create session | required |")
	assert.Contains(t, md, "| Journey stage | conversion |")
}

func TestRenderPageMarkdownEscapesPipes(t *testing.T) {
	r := sampleResult("s", "https://example.com/x")
	r.Features.InteractiveElements[0].Purpose = "a|b"
	md := RenderPageMarkdown(r)
	assert.Contains(t, md, `a\|b`)
}

func newGen(t *testing.T) (*Generator, *artifacts.Store) {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), "proj")
	require.NoError(t, err)
	meta := &artifacts.ProjectMetadata{ProjectID: "proj", SeedURL: "https://example.com", Domain: "example.com"}
	return NewGenerator(store, meta), store
}

func TestPageDonePublishesIncrementally(t *testing.T) {
	gen, store := newGen(t)

	require.NoError(t, gen.PageDone(sampleResult("example-com-a", "https://example.com/a")))
	report, err := store.ReadMasterReport()
	require.NoError(t, err)
	assert.Contains(t, report, "https://example.com/a")
	assert.NotContains(t, report, "https://example.com/b")

	require.NoError(t, gen.PageDone(sampleResult("example-com-b", "https://example.com/b")))
	report, err = store.ReadMasterReport()
	require.NoError(t, err)
	assert.Contains(t, report, "https://example.com/a")
	assert.Contains(t, report, "https://example.com/b")

	// TOC regenerated from disk.
	assert.Contains(t, report, "- [https://example.com/a](pages/page-example-com-a.md)")
	assert.Contains(t, report, "- [https://example.com/b](pages/page-example-com-b.md)")
}

func TestMasterReportByteIdenticalRegeneration(t *testing.T) {
	gen, store := newGen(t)
	require.NoError(t, gen.PageDone(sampleResult("example-com-a", "https://example.com/a")))
	require.NoError(t, gen.PageDone(sampleResult("example-com-b", "https://example.com/b")))

	first, err := store.ReadMasterReport()
	require.NoError(t, err)
	require.NoError(t, gen.RegenerateMasterReport())
	second, err := store.ReadMasterReport()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMasterReportPartialResultsSection(t *testing.T) {
	gen, store := newGen(t)

	degraded := sampleResult("example-com-pricing", "https://example.com/pricing")
	degraded.Step1 = analysis.StepPartial
	degraded.Step2 = analysis.StepFailed
	degraded.Features = nil
	degraded.Errors = []analysis.ErrorRecord{{Kind: "AnalysisQualityError", Message: "malformed JSON three times"}}

	require.NoError(t, gen.PageDone(sampleResult("example-com-a", "https://example.com/a")))
	require.NoError(t, gen.PageDone(degraded))

	report, err := store.ReadMasterReport()
	require.NoError(t, err)
	assert.Contains(t, report, "## Partial Results")
	assert.Contains(t, report, "https://example.com/pricing")
	assert.Contains(t, report, "Preserved summary")
	assert.Contains(t, report, "AnalysisQualityError")
}

func TestMasterReportAPIGroupedByMethod(t *testing.T) {
	a := sampleResult("a", "https://example.com/a")
	b := sampleResult("b", "https://example.com/b")
	b.Features.APIIntegrations = []analysis.APIIntegration{
		{Method: "GET", Endpoint: "/api/plans", Purpose: "List plans", Auth: "none"},
		{Method: "POST", Endpoint: "/api/checkout", Purpose: "Create session", Auth: "required"}, // dup of a
	}

	meta := &artifacts.ProjectMetadata{Domain: "example.com", SeedURL: "https://example.com"}
	report := RenderMasterReport(meta, []*analysis.PageResult{a, b})

	getIdx := strings.Index(report, "### GET")
	postIdx := strings.Index(report, "### POST")
	require.Greater(t, getIdx, 0)
	require.Greater(t, postIdx, getIdx)
	assert.Equal(t, 1, strings.Count(report, "`/api/checkout`"), "duplicate endpoints collapse")
}

func TestMasterReportDedupesWorkflows(t *testing.T) {
	a := sampleResult("a", "https://example.com/a")
	b := sampleResult("b", "https://example.com/b")

	meta := &artifacts.ProjectMetadata{Domain: "example.com", SeedURL: "https://example.com"}
	report := RenderMasterReport(meta, []*analysis.PageResult{a, b})

	assert.Contains(t, report, "## Business Logic")
	assert.Equal(t, 1, strings.Count(report, "- select plan\n"))
}
