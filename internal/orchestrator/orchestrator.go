package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webatlas/internal/analysis"
	"webatlas/internal/artifacts"
	"webatlas/internal/config"
	"webatlas/internal/discovery"
	"webatlas/internal/docgen"
	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
	"webatlas/internal/workflow"
)

// ConfirmFunc gates a phase in interactive mode. stage is one of
// "discovery", "selection", "step2"; detail carries the page URL for
// step2 confirmations. A nil ConfirmFunc auto-confirms everything.
type ConfirmFunc func(stage, detail string) bool

// Request are the analyze_legacy_site inputs.
type Request struct {
	SeedURL        string
	Mode           Mode
	MaxPages       int
	IncludeStep2   *bool // nil = mode default
	Interactive    bool
	Confirm        ConfirmFunc
	ProjectID      string
	CostPriority   CostPriority
	FocusAreas     []string
	IncludePattern []string
	ExcludePattern []string
	FilterMode     discovery.FilterMode
	RetryFailed    bool // on resume, re-queue failed pages
	// OnEngine fires once the workflow engine exists, before Run starts;
	// callers use it to wire control surfaces.
	OnEngine func(*workflow.Engine)
}

// Result is the analyze_legacy_site output.
type Result struct {
	ProjectID  string
	WorkflowID string
	State      workflow.State
	Counts     workflow.Counts
	ReportPath string
	Estimate   *CostEstimate
	Aborted    string // non-empty when an interactive confirmation declined
}

// Orchestrator owns the workflow and store lifetimes for one run.
type Orchestrator struct {
	settings *config.Settings
	facade   analysis.ChatCaller
	nav      Navigator
	pipeline *discovery.Pipeline

	engine *workflow.Engine
	store  *artifacts.Store
}

// New assembles an orchestrator from its collaborators. The navigator is
// owned by the orchestrator from here on and closed at the end of a run.
func New(settings *config.Settings, facade analysis.ChatCaller, nav Navigator, pipeline *discovery.Pipeline) *Orchestrator {
	return &Orchestrator{settings: settings, facade: facade, nav: nav, pipeline: pipeline}
}

// Engine exposes the live workflow engine for control operations; nil
// before execution starts.
func (o *Orchestrator) Engine() *workflow.Engine { return o.engine }

// AnalyzeLegacySite runs the full pipeline: discovery, page selection,
// cost estimate, workflow execution, and report synthesis.
func (o *Orchestrator) AnalyzeLegacySite(ctx context.Context, req Request) (*Result, error) {
	log := logging.Workflow()

	seed, err := urlkit.Normalize(req.SeedURL)
	if err != nil {
		return nil, err
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = strings.ReplaceAll(seed.Domain, ".", "-") + "-" + uuid.NewString()[:8]
	}
	if req.Mode == "" {
		req.Mode = ModeRecommended
	}
	if req.CostPriority == "" {
		req.CostPriority = CostBalanced
	}

	// Phase 1: discovery.
	inv, err := o.pipeline.Discover(ctx, seed.URL)
	if err != nil {
		return nil, err
	}
	if !o.confirm(req, "discovery", fmt.Sprintf("%d urls discovered", inv.Len())) {
		return &Result{ProjectID: projectID, Aborted: "discovery"}, nil
	}

	// Phase 2: page selection. Filters run before the cap.
	maxPages, step2Default := modePreset(req.Mode, req.MaxPages)
	includeStep2 := step2Default
	if req.IncludeStep2 != nil {
		includeStep2 = *req.IncludeStep2
	}
	selected := selectPages(inv, req.IncludePattern, req.ExcludePattern, req.FilterMode, req.FocusAreas, maxPages)
	if len(selected) == 0 {
		return nil, &discovery.DiscoveryError{Seed: seed.URL, Reason: "no pages left after filtering"}
	}
	if !o.confirm(req, "selection", fmt.Sprintf("%d pages selected", len(selected))) {
		return &Result{ProjectID: projectID, Aborted: "selection"}, nil
	}

	// Phase 3: cost estimate, persisted for review.
	estimate, err := estimateCost(o.settings, len(selected), includeStep2, req.CostPriority)
	if err != nil {
		return nil, err
	}

	store, err := artifacts.NewStore(o.settings.OutputRoot, projectID)
	if err != nil {
		return nil, err
	}
	o.store = store
	if err := store.WriteReport("cost-estimate.md", renderCostEstimate(estimate)); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(selected))
	for _, d := range selected {
		urls = append(urls, d.Normalized.URL)
	}

	meta := &artifacts.ProjectMetadata{
		ProjectID: projectID,
		SeedURL:   seed.URL,
		Domain:    seed.Domain,
		CreatedAt: time.Now().UTC(),
		Settings: map[string]any{
			"mode":          string(req.Mode),
			"max_pages":     maxPages,
			"include_step2": includeStep2,
			"cost_priority": string(req.CostPriority),
		},
	}

	result, err := o.execute(ctx, req, store, meta, urls, includeStep2, nil)
	if err != nil {
		return nil, err
	}
	result.ProjectID = projectID
	result.Estimate = estimate
	log.Info("analysis finished",
		zap.String("project", projectID),
		zap.String("state", string(result.State)),
		zap.Int("completed", result.Counts.Completed))
	return result, nil
}

// AnalyzePageList starts a workflow over an explicit URL list, skipping
// discovery and selection.
func (o *Orchestrator) AnalyzePageList(ctx context.Context, projectID string, rawURLs []string, includeStep2 bool, interactive bool, confirm ConfirmFunc) (*Result, error) {
	if projectID == "" {
		projectID = "pages-" + uuid.NewString()[:8]
	}
	var urls []string
	var domain string
	for _, raw := range rawURLs {
		n, err := urlkit.Normalize(raw)
		if err != nil {
			return nil, err
		}
		if domain == "" {
			domain = n.Domain
		}
		urls = append(urls, n.URL)
	}
	if len(urls) == 0 {
		return nil, &discovery.DiscoveryError{Seed: "", Reason: "empty page list"}
	}

	store, err := artifacts.NewStore(o.settings.OutputRoot, projectID)
	if err != nil {
		return nil, err
	}
	o.store = store
	meta := &artifacts.ProjectMetadata{
		ProjectID: projectID,
		SeedURL:   urls[0],
		Domain:    domain,
		CreatedAt: time.Now().UTC(),
	}
	req := Request{Interactive: interactive, Confirm: confirm}
	result, err := o.execute(ctx, req, store, meta, urls, includeStep2, nil)
	if err != nil {
		return nil, err
	}
	result.ProjectID = projectID
	return result, nil
}

// Resume continues a checkpointed workflow: terminal pages are not
// re-processed, failed pages re-queue only when retryFailed is set.
func (o *Orchestrator) Resume(ctx context.Context, cp *artifacts.Checkpoint, includeStep2, retryFailed bool) (*Result, error) {
	projectID := cp.ProjectID
	if projectID == "" {
		return nil, fmt.Errorf("checkpoint missing project id")
	}
	store, err := artifacts.NewStore(o.settings.OutputRoot, projectID)
	if err != nil {
		return nil, err
	}
	o.store = store

	meta, err := store.ReadMetadata()
	if err != nil {
		meta = &artifacts.ProjectMetadata{ProjectID: projectID, CreatedAt: time.Now().UTC()}
	}

	var urls []string
	urls = append(urls, cp.CompletedPages...)
	urls = append(urls, cp.SkippedPages...)
	urls = append(urls, cp.FailedPages...)
	urls = append(urls, cp.PendingPages...)

	req := Request{RetryFailed: retryFailed}
	result, err := o.execute(ctx, req, store, meta, urls, includeStep2, cp)
	if err != nil {
		return nil, err
	}
	result.ProjectID = projectID
	return result, nil
}

// execute runs phase 4 (workflow) and phase 5 (synthesis).
func (o *Orchestrator) execute(
	ctx context.Context,
	req Request,
	store *artifacts.Store,
	meta *artifacts.ProjectMetadata,
	urls []string,
	includeStep2 bool,
	resume *artifacts.Checkpoint,
) (*Result, error) {
	defer o.nav.Close()

	gen := docgen.NewGenerator(store, meta)

	analyzerOpts := analysis.Options{IncludeStep2: includeStep2}
	if req.Interactive && req.Confirm != nil && includeStep2 {
		confirm := req.Confirm
		analyzerOpts.ConfirmStep2 = func(url string) bool { return confirm("step2", url) }
	}
	proc := &pageProcessor{
		nav:      o.nav,
		analyzer: analysis.NewAnalyzer(o.facade, o.settings, analyzerOpts),
	}

	engine := workflow.NewEngine(store, proc, urls, workflow.Options{
		MaxConcurrent:       o.settings.MaxConcurrentPages,
		MaxRetriesPerPage:   1,
		EnableCheckpointing: true,
		OnPageDone: func(url string, state workflow.PageState, result *analysis.PageResult) {
			if result == nil {
				return
			}
			if err := gen.PageDone(result); err != nil {
				logging.Docgen().Error("incremental docgen failed", zap.String("url", url), zap.Error(err))
			}
		},
	})
	if resume != nil {
		engine.ApplyCheckpoint(resume, req.RetryFailed)
	}
	o.engine = engine
	if req.OnEngine != nil {
		req.OnEngine(engine)
	}

	// Stamp the checkpoint with the project so resume can find the store.
	projectID := meta.ProjectID

	state, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	cp := engine.Checkpoint()
	cp.ProjectID = projectID
	if cerr := store.SaveCheckpoint(cp); cerr != nil {
		return nil, cerr
	}

	// Phase 5: synthesis.
	counts := engine.CountsNow()
	meta.Counts = artifacts.Counts{
		Total:     counts.Total(),
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Skipped:   counts.Skipped,
	}
	meta.Quality = summarizeQuality(engine.Results())
	meta.SessionMetrics = o.nav.Metrics()
	if err := store.WriteMetadata(meta); err != nil {
		return nil, err
	}
	if err := gen.RegenerateMasterReport(); err != nil {
		return nil, err
	}

	return &Result{
		WorkflowID: engine.ID,
		State:      state,
		Counts:     counts,
		ReportPath: store.Dir() + "/analysis-report.md",
	}, nil
}

func (o *Orchestrator) confirm(req Request, stage, detail string) bool {
	if !req.Interactive || req.Confirm == nil {
		return true
	}
	return req.Confirm(stage, detail)
}

func summarizeQuality(results map[string]*analysis.PageResult) artifacts.QualitySummary {
	var q artifacts.QualitySummary
	var sumS, sumF float64
	var nS, nF int
	for _, r := range results {
		if r.Summary != nil {
			sumS += r.Summary.Quality.Overall
			nS++
		}
		if r.Features != nil {
			sumF += r.Features.QualityScore
			nF++
		}
		if r.Step1 == analysis.StepPartial || (r.Step1 == analysis.StepDone && r.Step2 == analysis.StepFailed) {
			q.PartialResults++
		}
	}
	if nS > 0 {
		q.AvgSummaryQuality = sumS / float64(nS)
	}
	if nF > 0 {
		q.AvgFeatureQuality = sumF / float64(nF)
	}
	return q
}
