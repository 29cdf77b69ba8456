package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/config"
	"webatlas/internal/orchestrator"
)

func TestRegistryDispatchIsLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register(Tool{
		Name:   "echo",
		Schema: `{"type":"object"}`,
		Handler: func(_ context.Context, params json.RawMessage) (any, error) {
			called = true
			return string(params), nil
		},
	}))

	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, `{"x":1}`, out)

	_, err = r.Dispatch(context.Background(), "nope", nil)
	assert.ErrorContains(t, err, "unknown tool")
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	tool := Tool{Name: "t", Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil }}
	require.NoError(t, r.Register(tool))
	assert.Error(t, r.Register(tool))
}

func TestRuntimeRegistersAllEntryPoints(t *testing.T) {
	settings := &config.Settings{
		Step1Model:    "gpt-4o-mini",
		Step2Model:    "gpt-4o",
		FallbackModel: "claude-3-5-haiku",
		OpenAIKey:     "k",
		AnthropicKey:  "k",
		OutputRoot:    t.TempDir(),
	}
	rt := NewRuntime(settings, func() *orchestrator.Orchestrator { return nil })
	r := NewRegistry()
	require.NoError(t, rt.RegisterAll(r))

	names := make([]string, 0)
	for _, tool := range r.List() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Schema, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, []string{
		"analyze_legacy_site",
		"analyze_page_list",
		"control_workflow",
		"discover_website",
		"get_analysis_status",
		"resume_workflow_from_checkpoint",
	}, names)
}

func TestControlWorkflowUnknownID(t *testing.T) {
	rt := NewRuntime(&config.Settings{OutputRoot: t.TempDir()}, nil)
	_, err := rt.controlWorkflow(context.Background(), json.RawMessage(`{"workflow_id":"x","action":"pause"}`))
	assert.ErrorContains(t, err, "unknown workflow")
}

func TestGetStatusEmptyProject(t *testing.T) {
	rt := NewRuntime(&config.Settings{OutputRoot: t.TempDir()}, nil)
	out, err := rt.getStatus(context.Background(), json.RawMessage(`{"project_id":"fresh"}`))
	require.NoError(t, err)
	status := out.(*orchestrator.Status)
	assert.Equal(t, "fresh", status.ProjectID)
	assert.False(t, status.HasReport)
}
