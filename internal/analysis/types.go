// Package analysis implements the two-step LLM pipeline: content
// summarization (step 1) feeding feature analysis (step 2), with schema
// validation, quality scoring, retry, and fallback-model escalation.
package analysis

import (
	"fmt"

	"webatlas/internal/browser"
)

// JourneyStage places a page in the user journey.
type JourneyStage string

const (
	StageEntry      JourneyStage = "entry"
	StageMiddle     JourneyStage = "middle"
	StageConversion JourneyStage = "conversion"
	StageExit       JourneyStage = "exit"
)

// QualityBreakdown carries the blended score and its components.
type QualityBreakdown struct {
	Overall      float64 `json:"overall"`
	Completeness float64 `json:"completeness"`
	Specificity  float64 `json:"specificity"`
	Depth        float64 `json:"depth"`
}

// ContentSummary is the step-1 output: what the page is for and how
// important it is to the business.
type ContentSummary struct {
	ID                 string           `json:"id"`
	Purpose            string           `json:"purpose"`
	UserContext        string           `json:"user_context"`
	BusinessLogic      string           `json:"business_logic"`
	NavigationRole     string           `json:"navigation_role"`
	BusinessImportance float64          `json:"business_importance"` // [0,1]
	Confidence         float64          `json:"confidence"`          // [0,1]
	Workflows          []string         `json:"workflows"`
	JourneyStage       JourneyStage     `json:"journey_stage"`
	Keywords           []string         `json:"keywords"`
	Quality            QualityBreakdown `json:"quality"`
}

// InteractiveElement is one actionable element found on the page.
type InteractiveElement struct {
	Type     string `json:"type"` // button, link, form, input, menu, tab...
	Selector string `json:"selector"`
	Purpose  string `json:"purpose"`
}

// APIIntegration describes one backend dependency of the page.
type APIIntegration struct {
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Purpose  string `json:"purpose"`
	Auth     string `json:"auth"` // none, optional, required
}

// Priority ranks a rebuild spec.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RebuildSpec is one rebuild-ready requirement derived from the page.
type RebuildSpec struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Complexity  int      `json:"complexity"` // 1..10
	Interactive bool     `json:"interactive"`
	Priority    Priority `json:"priority,omitempty"` // assigned post-validation
}

// FeatureAnalysis is the step-2 output: the page's functional surface.
type FeatureAnalysis struct {
	InteractiveElements    []InteractiveElement `json:"interactive_elements"`
	FunctionalCapabilities []string             `json:"functional_capabilities"`
	APIIntegrations        []APIIntegration     `json:"api_integrations"`
	BusinessRules          []string             `json:"business_rules"`
	RebuildSpecs           []RebuildSpec        `json:"rebuild_specs"`
	OverallConfidence      float64              `json:"overall_confidence"`
	QualityScore           float64              `json:"quality_score"`
	ContextRef             string               `json:"context_ref"`
}

// StepState tracks a pipeline step through the page lifecycle.
type StepState string

const (
	StepPending StepState = "pending"
	StepDone    StepState = "done"
	StepPartial StepState = "partial"
	StepFailed  StepState = "failed"
	StepSkipped StepState = "skipped"
)

// ErrorRecord is one captured page-scoped failure.
type ErrorRecord struct {
	Kind       string `json:"kind"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	RetryCount int    `json:"retry_count"`
}

// PageResult is everything produced for one processed URL.
type PageResult struct {
	PageID           string           `json:"page_id"`
	URL              string           `json:"url"`
	SnapshotRef      string           `json:"snapshot_ref,omitempty"`
	Step1            StepState        `json:"step1"`
	Summary          *ContentSummary  `json:"summary,omitempty"`
	Step2            StepState        `json:"step2"`
	Features         *FeatureAnalysis `json:"features,omitempty"`
	RawStep1Response string           `json:"raw_step1_response,omitempty"`
	RawStep2Response string           `json:"raw_step2_response,omitempty"`
	Errors           []ErrorRecord    `json:"errors,omitempty"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`

	// Snapshot is carried in memory for docgen; persisted separately.
	Snapshot *browser.PageSnapshot `json:"-"`
}

// Succeeded reports whether step 1 (and step 2 when attempted) completed.
func (r *PageResult) Succeeded() bool {
	if r.Step1 != StepDone {
		return false
	}
	return r.Step2 == StepDone || r.Step2 == StepSkipped
}

// QualityError reports a response that failed schema validation or scored
// below the quality floor after retries and fallback.
type QualityError struct {
	Step    int
	Reason  string
	Quality float64
}

func (e *QualityError) Error() string {
	if e.Quality > 0 {
		return fmt.Sprintf("analysis quality error (step %d): %s (quality %.2f)", e.Step, e.Reason, e.Quality)
	}
	return fmt.Sprintf("analysis quality error (step %d): %s", e.Step, e.Reason)
}
