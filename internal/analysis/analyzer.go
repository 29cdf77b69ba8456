package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"webatlas/internal/browser"
	"webatlas/internal/config"
	"webatlas/internal/llm"
	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
)

// ChatCaller is the facade surface the analyzer needs; satisfied by
// *llm.Facade.
type ChatCaller interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Options tunes the analyzer.
type Options struct {
	MinQuality  float64
	MaxTokens   int
	Temperature float64
	// IncludeStep2 false stops after the summary (quick mode).
	IncludeStep2 bool
	// ConfirmStep2 gates step 2 per page in interactive mode; nil
	// auto-confirms.
	ConfirmStep2 func(url string) bool
}

// Analyzer runs the two-step pipeline for a single page.
type Analyzer struct {
	caller   ChatCaller
	settings *config.Settings
	opts     Options
}

// NewAnalyzer builds an analyzer bound to a facade and settings.
func NewAnalyzer(caller ChatCaller, settings *config.Settings, opts Options) *Analyzer {
	if opts.MinQuality <= 0 {
		opts.MinQuality = DefaultMinQuality
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Analyzer{caller: caller, settings: settings, opts: opts}
}

// AnalyzePage runs step 1 then (optionally) step 2 against a snapshot,
// applying the retry ladder per step: same model with a hardened prompt,
// then the fallback model, then terminal failure. Partial results are
// always preserved in the returned PageResult, which is non-nil even on
// analysis failure; only a snapshot URL that fails to normalize returns a
// nil result with the error.
func (a *Analyzer) AnalyzePage(ctx context.Context, snap *browser.PageSnapshot) (*PageResult, error) {
	log := logging.Analysis()
	start := time.Now()

	norm, err := urlkit.Normalize(snap.URL)
	if err != nil {
		return nil, err
	}
	result := &PageResult{
		PageID:   urlkit.Slugify(norm),
		URL:      norm.URL,
		Step1:    StepPending,
		Step2:    StepPending,
		Snapshot: snap,
	}
	defer func() { result.ProcessingTimeMs = time.Since(start).Milliseconds() }()

	// Step 1: content summary.
	summary, raw, err := a.runStep1(ctx, snap, result)
	if err != nil {
		result.Step1 = StepFailed
		result.Step2 = StepSkipped
		result.RawStep1Response = raw
		recordError(result, err)
		log.Warn("step 1 failed terminally", zap.String("url", result.URL), zap.Error(err))
		return result, err
	}
	summary.ID = result.PageID + "-summary"
	result.Summary = summary
	result.Step1 = StepDone

	if !a.opts.IncludeStep2 {
		result.Step2 = StepSkipped
		return result, nil
	}
	if a.opts.ConfirmStep2 != nil && !a.opts.ConfirmStep2(result.URL) {
		result.Step2 = StepSkipped
		log.Info("step 2 declined", zap.String("url", result.URL))
		return result, nil
	}

	// Step 2: feature analysis, consuming the step-1 context.
	features, raw2, err := a.runStep2(ctx, snap, summary, result)
	if err != nil {
		// Step 1 survives as a partial result.
		result.Step1 = StepPartial
		result.Step2 = StepFailed
		result.RawStep2Response = raw2
		recordError(result, err)
		log.Warn("step 2 failed terminally, preserving step 1", zap.String("url", result.URL), zap.Error(err))
		return result, err
	}
	// The context contract: the analysis must reference the summary that
	// fed it, whatever the model echoed.
	features.ContextRef = summary.ID
	AssignPriorities(features, summary)
	result.Features = features
	result.Step2 = StepDone

	log.Info("page analyzed",
		zap.String("url", result.URL),
		zap.Float64("summary_quality", summary.Quality.Overall),
		zap.Float64("features_quality", features.QualityScore))
	return result, nil
}

// runStep1 executes the summary ladder: primary model, hardened retry,
// fallback model.
func (a *Analyzer) runStep1(ctx context.Context, snap *browser.PageSnapshot, result *PageResult) (*ContentSummary, string, error) {
	system, user := BuildStep1Prompt(snap)
	primary, err := a.settings.Resolve(config.RoleStep1)
	if err != nil {
		return nil, "", err
	}
	fallback, err := a.settings.Resolve(config.RoleFallback)
	if err != nil {
		return nil, "", err
	}

	var lastRaw string
	validate := func(raw string) (any, error) { return ValidateSummary(raw, a.opts.MinQuality) }
	out, raw, err := a.ladder(ctx, system, user, contentSummarySchema, primary.ID, fallback.ID, validate, result, 1)
	lastRaw = raw
	if err != nil {
		return nil, lastRaw, err
	}
	return out.(*ContentSummary), lastRaw, nil
}

// runStep2 executes the feature-analysis ladder.
func (a *Analyzer) runStep2(ctx context.Context, snap *browser.PageSnapshot, summary *ContentSummary, result *PageResult) (*FeatureAnalysis, string, error) {
	system, user := BuildStep2Prompt(snap, summary)
	primary, err := a.settings.Resolve(config.RoleStep2)
	if err != nil {
		return nil, "", err
	}
	fallback, err := a.settings.Resolve(config.RoleFallback)
	if err != nil {
		return nil, "", err
	}

	validate := func(raw string) (any, error) { return ValidateFeatures(raw, a.opts.MinQuality) }
	out, raw, err := a.ladder(ctx, system, user, featureAnalysisSchema, primary.ID, fallback.ID, validate, result, 2)
	if err != nil {
		return nil, raw, err
	}
	return out.(*FeatureAnalysis), raw, nil
}

// ladder is the shared retry policy: (1) primary model, (2) primary model
// with a schema-hardened prompt, (3) fallback model with the hardened
// prompt. Transport-level retries happen inside the facade; this ladder
// only reacts to terminal LLM errors and validation failures.
func (a *Analyzer) ladder(
	ctx context.Context,
	system, user, schema, primaryModel, fallbackModel string,
	validate func(string) (any, error),
	result *PageResult,
	step int,
) (any, string, error) {
	log := logging.Analysis()

	attempts := []struct {
		model  string
		harden bool
	}{
		{primaryModel, false},
		{primaryModel, true},
		{fallbackModel, true},
	}

	var lastRaw string
	var lastFailure string
	retries := 0
	for i, att := range attempts {
		prompt := user
		if att.harden {
			prompt = HardenPrompt(user, schema, lastFailure)
		}
		resp, err := a.caller.Chat(ctx, llm.ChatRequest{
			ModelID: att.model,
			Messages: []llm.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   a.opts.MaxTokens,
			Temperature: a.opts.Temperature,
		})
		if err != nil {
			var llmErr *llm.LLMError
			if errors.As(err, &llmErr) && i < len(attempts)-1 {
				// Exhausted facade retries on this model; escalate the
				// ladder rather than giving up.
				lastFailure = llmErr.Message
				result.Errors = append(result.Errors, ErrorRecord{
					Kind: "LLMError", Code: string(llmErr.Kind), Message: llmErr.Message, RetryCount: retries,
				})
				retries++
				continue
			}
			return nil, lastRaw, err
		}

		lastRaw = resp.Content
		out, verr := validate(resp.Content)
		if verr == nil {
			return out, lastRaw, nil
		}
		lastFailure = verr.Error()
		log.Debug("validation failed, escalating ladder",
			zap.Int("step", step),
			zap.Int("attempt", i+1),
			zap.String("model", att.model),
			zap.String("reason", lastFailure))
		result.Errors = append(result.Errors, ErrorRecord{
			Kind: "AnalysisQualityError", Message: lastFailure, RetryCount: retries,
		})
		retries++
	}

	return nil, lastRaw, &QualityError{Step: step, Reason: "retries and fallback exhausted: " + lastFailure}
}

func recordError(result *PageResult, err error) {
	var qe *QualityError
	var le *llm.LLMError
	switch {
	case errors.As(err, &qe):
		result.Errors = append(result.Errors, ErrorRecord{Kind: "AnalysisQualityError", Message: qe.Error()})
	case errors.As(err, &le):
		result.Errors = append(result.Errors, ErrorRecord{Kind: "LLMError", Code: string(le.Kind), Message: le.Message})
	default:
		result.Errors = append(result.Errors, ErrorRecord{Kind: "Error", Message: err.Error()})
	}
}
