package orchestrator

import (
	"webatlas/internal/artifacts"
	"webatlas/internal/config"
)

// Status is the get_analysis_status answer, assembled from disk so it
// works with or without a live workflow.
type Status struct {
	ProjectID  string                     `json:"project_id"`
	SeedURL    string                     `json:"seed_url,omitempty"`
	WorkflowID string                     `json:"workflow_id,omitempty"`
	Counts     artifacts.Counts           `json:"counts"`
	Pending    []string                   `json:"pending_pages,omitempty"`
	Failed     []string                   `json:"failed_pages,omitempty"`
	Quality    *artifacts.QualitySummary  `json:"quality_summary,omitempty"`
	HasReport  bool                       `json:"has_report"`
}

// ProjectStatus reads the persisted state of a project.
func ProjectStatus(settings *config.Settings, projectID string) (*Status, error) {
	store, err := artifacts.NewStore(settings.OutputRoot, projectID)
	if err != nil {
		return nil, err
	}

	status := &Status{ProjectID: projectID}

	if meta, err := store.ReadMetadata(); err == nil {
		status.SeedURL = meta.SeedURL
		status.Counts = meta.Counts
		status.Quality = &meta.Quality
	}
	if cp, err := store.LoadCheckpoint(); err == nil && cp != nil {
		status.WorkflowID = cp.WorkflowID
		status.Pending = cp.PendingPages
		status.Failed = cp.FailedPages
		// The checkpoint is fresher than metadata while a workflow runs.
		status.Counts = artifacts.Counts{
			Total:     len(cp.CompletedPages) + len(cp.PendingPages) + len(cp.FailedPages) + len(cp.SkippedPages),
			Completed: len(cp.CompletedPages),
			Failed:    len(cp.FailedPages),
			Skipped:   len(cp.SkippedPages),
		}
	}
	if report, err := store.ReadMasterReport(); err == nil && report != "" {
		status.HasReport = true
	}
	return status, nil
}
