package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"webatlas/internal/artifacts"
	"webatlas/internal/config"
	"webatlas/internal/discovery"
	"webatlas/internal/orchestrator"
	"webatlas/internal/resources"
	"webatlas/internal/workflow"
)

// OrchestratorFactory builds a fresh orchestrator per run; the CLI wires
// the real browser pool here, tests wire fakes.
type OrchestratorFactory func() *orchestrator.Orchestrator

// Runtime holds the long-lived state behind the tool handlers: settings,
// the orchestrator factory, and the table of live workflows for control
// operations.
type Runtime struct {
	Settings *config.Settings
	Factory  OrchestratorFactory

	mu        sync.Mutex
	workflows map[string]*workflow.Engine
}

// NewRuntime builds the handler runtime.
func NewRuntime(settings *config.Settings, factory OrchestratorFactory) *Runtime {
	return &Runtime{
		Settings:  settings,
		Factory:   factory,
		workflows: make(map[string]*workflow.Engine),
	}
}

// RegisterAll populates the registry with the six entry points.
func (rt *Runtime) RegisterAll(r *Registry) error {
	entries := []Tool{
		{
			Name:        "analyze_legacy_site",
			Description: "Full analysis of a legacy site: discovery, browsing, two-step LLM analysis, documentation.",
			Schema:      analyzeSiteSchema,
			Handler:     rt.analyzeLegacySite,
		},
		{
			Name:        "discover_website",
			Description: "Discover the URL inventory for a seed URL via robots, sitemaps, and crawling.",
			Schema:      discoverSchema,
			Handler:     rt.discoverWebsite,
		},
		{
			Name:        "analyze_page_list",
			Description: "Run the analysis workflow over an explicit list of URLs.",
			Schema:      pageListSchema,
			Handler:     rt.analyzePageList,
		},
		{
			Name:        "control_workflow",
			Description: "Pause, resume, stop, or skip within a running workflow.",
			Schema:      controlSchema,
			Handler:     rt.controlWorkflow,
		},
		{
			Name:        "resume_workflow_from_checkpoint",
			Description: "Resume an interrupted workflow from a checkpoint file.",
			Schema:      resumeSchema,
			Handler:     rt.resumeWorkflow,
		},
		{
			Name:        "get_analysis_status",
			Description: "Report current counts and states for a project.",
			Schema:      statusSchema,
			Handler:     rt.getStatus,
		},
	}
	for _, t := range entries {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) track(e *workflow.Engine) {
	if e == nil {
		return
	}
	rt.mu.Lock()
	rt.workflows[e.ID] = e
	rt.mu.Unlock()
}

type analyzeSiteParams struct {
	URL             string   `json:"url"`
	AnalysisMode    string   `json:"analysis_mode,omitempty"`
	MaxPages        int      `json:"max_pages,omitempty"`
	IncludeStep2    *bool    `json:"include_step2,omitempty"`
	InteractiveMode bool     `json:"interactive_mode,omitempty"`
	ProjectID       string   `json:"project_id,omitempty"`
	CostPriority    string   `json:"cost_priority,omitempty"`
	FocusAreas      []string `json:"focus_areas,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	URLFilterMode   string   `json:"url_filter_mode,omitempty"`
}

func (rt *Runtime) analyzeLegacySite(ctx context.Context, params json.RawMessage) (any, error) {
	var p analyzeSiteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("analyze_legacy_site params: %w", err)
	}
	o := rt.Factory()
	req := orchestrator.Request{
		SeedURL:        p.URL,
		Mode:           orchestrator.Mode(p.AnalysisMode),
		MaxPages:       p.MaxPages,
		IncludeStep2:   p.IncludeStep2,
		Interactive:    p.InteractiveMode,
		ProjectID:      p.ProjectID,
		CostPriority:   orchestrator.CostPriority(p.CostPriority),
		FocusAreas:     p.FocusAreas,
		IncludePattern: p.IncludePatterns,
		ExcludePattern: p.ExcludePatterns,
		FilterMode:     discovery.FilterMode(p.URLFilterMode),
	}

	// Track the engine as soon as it exists so control_workflow works
	// mid-run.
	req.OnEngine = func(e *workflow.Engine) { rt.track(e) }

	result, err := o.AnalyzeLegacySite(ctx, req)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type discoverParams struct {
	URL             string   `json:"url"`
	MaxDepth        int      `json:"max_depth,omitempty"`
	MaxPages        int      `json:"max_pages,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	URLFilterMode   string   `json:"url_filter_mode,omitempty"`
}

func (rt *Runtime) discoverWebsite(ctx context.Context, params json.RawMessage) (any, error) {
	var p discoverParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("discover_website params: %w", err)
	}
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = rt.Settings.DiscoveryMaxDepth
	}
	pipeline := discovery.NewPipeline(discovery.Options{
		MaxDepth:      maxDepth,
		MaxCrawlPages: p.MaxPages,
		Timeout:       rt.Settings.DiscoveryTimeout,
	})
	inv, err := pipeline.Discover(ctx, p.URL)
	if err != nil {
		return nil, err
	}
	if len(p.IncludePatterns) > 0 || len(p.ExcludePatterns) > 0 {
		inv.Entries = discovery.ApplyFilters(inv.Entries, p.IncludePatterns, p.ExcludePatterns, discovery.FilterMode(p.URLFilterMode))
	}
	return inv, nil
}

type pageListParams struct {
	URLs         []string `json:"urls"`
	ProjectID    string   `json:"project_id,omitempty"`
	IncludeStep2 bool     `json:"include_step2,omitempty"`
}

func (rt *Runtime) analyzePageList(ctx context.Context, params json.RawMessage) (any, error) {
	var p pageListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("analyze_page_list params: %w", err)
	}
	o := rt.Factory()
	result, err := o.AnalyzePageList(ctx, p.ProjectID, p.URLs, p.IncludeStep2, false, nil)
	if err != nil {
		return nil, err
	}
	rt.track(o.Engine())
	return result, nil
}

type controlParams struct {
	WorkflowID string `json:"workflow_id"`
	Action     string `json:"action"` // pause, resume, stop, skip
	URL        string `json:"url,omitempty"`
}

func (rt *Runtime) controlWorkflow(_ context.Context, params json.RawMessage) (any, error) {
	var p controlParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("control_workflow params: %w", err)
	}
	rt.mu.Lock()
	engine, ok := rt.workflows[p.WorkflowID]
	rt.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", p.WorkflowID)
	}

	switch p.Action {
	case "pause":
		engine.Pause()
	case "resume":
		engine.Resume()
	case "stop":
		engine.Stop()
	case "skip":
		if p.URL == "" {
			return nil, fmt.Errorf("skip requires url")
		}
		if !engine.Skip(p.URL) {
			return nil, fmt.Errorf("page %q is not pending", p.URL)
		}
	default:
		return nil, fmt.Errorf("unknown action %q", p.Action)
	}
	return map[string]any{
		"workflow_id": p.WorkflowID,
		"state":       engine.CurrentState(),
		"counts":      engine.CountsNow(),
	}, nil
}

type resumeParams struct {
	CheckpointPath string `json:"checkpoint_path"`
	IncludeStep2   bool   `json:"include_step2,omitempty"`
	RetryFailed    bool   `json:"retry_failed,omitempty"`
}

func (rt *Runtime) resumeWorkflow(ctx context.Context, params json.RawMessage) (any, error) {
	var p resumeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("resume_workflow_from_checkpoint params: %w", err)
	}
	cp, err := artifacts.LoadCheckpointFrom(p.CheckpointPath)
	if err != nil {
		return nil, err
	}
	o := rt.Factory()
	result, err := o.Resume(ctx, cp, p.IncludeStep2, p.RetryFailed)
	if err != nil {
		return nil, err
	}
	rt.track(o.Engine())
	return result, nil
}

type statusParams struct {
	ProjectID string `json:"project_id"`
}

func (rt *Runtime) getStatus(_ context.Context, params json.RawMessage) (any, error) {
	var p statusParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("get_analysis_status params: %w", err)
	}
	return orchestrator.ProjectStatus(rt.Settings, p.ProjectID)
}

// Resources returns the read-only artifact exposer for the runtime's
// output root.
func (rt *Runtime) Resources() *resources.Exposer {
	return resources.NewExposer(rt.Settings.OutputRoot)
}
