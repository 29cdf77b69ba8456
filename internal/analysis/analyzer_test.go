package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/browser"
	"webatlas/internal/config"
	"webatlas/internal/llm"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Step1Model:    "gpt-4o-mini",
		Step2Model:    "gpt-4o",
		FallbackModel: "claude-3-5-haiku",
		OpenAIKey:     "k",
		AnthropicKey:  "k",
	}
}

func testSnapshot() *browser.PageSnapshot {
	return &browser.PageSnapshot{
		URL:         "https://example.com/pricing",
		FinalURL:    "https://example.com/pricing",
		StatusCode:  200,
		Title:       "Pricing",
		VisibleText: "Choose a plan. Pro $10/mo. Enterprise: contact sales.",
		Meta:        map[string]string{"description": "Plans and pricing"},
		DOMStats:    browser.DOMStats{Nodes: 400, Forms: 1, Inputs: 3, Buttons: 4, Links: 20},
		Network: browser.NetworkLog{
			APIEndpoints: []browser.APIEndpoint{
				{Method: "GET", Endpoint: "https://example.com/api/plans", ContentType: "application/json", Count: 1},
			},
		},
	}
}

// scriptedCaller returns canned responses in order; records prompts.
type scriptedCaller struct {
	responses []string
	errs      []error
	requests  []llm.ChatRequest
}

func (c *scriptedCaller) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	content := "{}"
	if i < len(c.responses) {
		content = c.responses[i]
	}
	return &llm.ChatResponse{Content: content, ModelID: req.ModelID}, nil
}

func TestAnalyzePageHappyPath(t *testing.T) {
	caller := &scriptedCaller{responses: []string{goodSummaryJSON, goodFeaturesJSON}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepDone, result.Step1)
	assert.Equal(t, StepDone, result.Step2)
	require.NotNil(t, result.Summary)
	require.NotNil(t, result.Features)

	// The context-passing contract.
	assert.Equal(t, result.Summary.ID, result.Features.ContextRef)
	assert.Equal(t, result.PageID+"-summary", result.Summary.ID)

	// Step order: step 1 uses the step-1 model, step 2 the step-2 model.
	require.Len(t, caller.requests, 2)
	assert.Equal(t, "gpt-4o-mini", caller.requests[0].ModelID)
	assert.Equal(t, "gpt-4o", caller.requests[1].ModelID)

	// Step 2's prompt embeds the full summary context block.
	step2Prompt := caller.requests[1].Messages[1].Content
	assert.Contains(t, step2Prompt, result.Summary.Purpose)
	assert.Contains(t, step2Prompt, "Business importance: 0.90")
	assert.Contains(t, step2Prompt, "Journey stage: conversion")

	// Priorities were assigned to every rebuild spec.
	for _, spec := range result.Features.RebuildSpecs {
		assert.NotEmpty(t, spec.Priority)
	}
}

func TestAnalyzePageHardenedRetryThenSuccess(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"not json at all", goodSummaryJSON, goodFeaturesJSON}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepDone, result.Step1)

	// Retry reused the same model with a hardened prompt.
	require.GreaterOrEqual(t, len(caller.requests), 2)
	assert.Equal(t, "gpt-4o-mini", caller.requests[1].ModelID)
	assert.Contains(t, caller.requests[1].Messages[1].Content, "previous response was rejected")
	assert.Contains(t, caller.requests[1].Messages[1].Content, `"journey_stage"`)
}

func TestAnalyzePageFallbackModelUsed(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"bad", "still bad", goodSummaryJSON, goodFeaturesJSON}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepDone, result.Step1)
	assert.Equal(t, "claude-3-5-haiku", caller.requests[2].ModelID)
}

func TestAnalyzePageStep1TerminalFailure(t *testing.T) {
	caller := &scriptedCaller{responses: []string{"bad", "bad", "bad"}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.Error(t, err)
	var qe *QualityError
	require.ErrorAs(t, err, &qe)

	// Step 2 never attempted; raw response captured; partial preserved.
	require.NotNil(t, result)
	assert.Equal(t, StepFailed, result.Step1)
	assert.Equal(t, StepSkipped, result.Step2)
	assert.Equal(t, "bad", result.RawStep1Response)
	assert.Len(t, caller.requests, 3)
	assert.NotEmpty(t, result.Errors)
}

func TestAnalyzePageStep2FailurePreservesStep1(t *testing.T) {
	caller := &scriptedCaller{responses: []string{goodSummaryJSON, "nope", "nope", "nope"}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Equal(t, StepPartial, result.Step1)
	assert.Equal(t, StepFailed, result.Step2)
	require.NotNil(t, result.Summary) // partial result kept
	assert.Nil(t, result.Features)
}

func TestAnalyzePageLLMErrorEscalatesLadder(t *testing.T) {
	exhausted := &llm.LLMError{Provider: config.ProviderOpenAI, ModelID: "gpt-4o-mini", Kind: llm.ErrExhausted, Message: "retries exhausted"}
	caller := &scriptedCaller{
		errs:      []error{exhausted, exhausted, nil, nil},
		responses: []string{"", "", goodSummaryJSON, goodFeaturesJSON},
	}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: true})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepDone, result.Step1)
	// Third attempt went to the fallback model.
	assert.Equal(t, "claude-3-5-haiku", caller.requests[2].ModelID)
}

func TestAnalyzePageStep2Disabled(t *testing.T) {
	caller := &scriptedCaller{responses: []string{goodSummaryJSON}}
	a := NewAnalyzer(caller, testSettings(), Options{IncludeStep2: false})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepDone, result.Step1)
	assert.Equal(t, StepSkipped, result.Step2)
	assert.Len(t, caller.requests, 1)
}

func TestAnalyzePageInteractiveDeclinesStep2(t *testing.T) {
	caller := &scriptedCaller{responses: []string{goodSummaryJSON}}
	a := NewAnalyzer(caller, testSettings(), Options{
		IncludeStep2: true,
		ConfirmStep2: func(url string) bool { return !strings.Contains(url, "pricing") },
	})

	result, err := a.AnalyzePage(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, StepSkipped, result.Step2)
	assert.True(t, result.Succeeded())
}

func TestAssignPrioritiesInteractiveTieBreak(t *testing.T) {
	s := &ContentSummary{BusinessImportance: 0.9}
	f := &FeatureAnalysis{
		OverallConfidence: 0.9,
		RebuildSpecs: []RebuildSpec{
			{Title: "informational", Complexity: 2, Interactive: false},
			{Title: "interactive", Complexity: 2, Interactive: true},
		},
	}
	AssignPriorities(f, s)
	assert.Equal(t, "interactive", f.RebuildSpecs[0].Title)
	assert.Equal(t, PriorityHigh, f.RebuildSpecs[0].Priority)
}

func TestAssignPrioritiesComplexityLowersScore(t *testing.T) {
	s := &ContentSummary{BusinessImportance: 0.6}
	f := &FeatureAnalysis{
		OverallConfidence: 0.6,
		RebuildSpecs: []RebuildSpec{
			{Title: "hard", Complexity: 10, Interactive: false},
			{Title: "easy", Complexity: 1, Interactive: false},
		},
	}
	AssignPriorities(f, s)
	assert.Equal(t, "easy", f.RebuildSpecs[0].Title)
	assert.Equal(t, PriorityHigh, f.RebuildSpecs[0].Priority)
	assert.Equal(t, PriorityLow, f.RebuildSpecs[1].Priority)
}
