// Package artifacts owns every on-disk mutation under a project root:
// per-page results, the master report, checkpoints, metadata, and the
// append-only event log. All writes are atomic (write-temp + rename) and
// the master report and checkpoint serialize through an advisory lock.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"webatlas/internal/analysis"
	"webatlas/internal/browser"
	"webatlas/internal/logging"
)

// Layout constants under <root>/<project>/docs/web_discovery/.
const (
	baseDirName     = "docs/web_discovery"
	pagesDirName    = "pages"
	progressDirName = "progress"
	reportsDirName  = "reports"

	metadataFile   = "analysis-metadata.json"
	reportFile     = "analysis-report.md"
	checkpointFile = "checkpoint.json"
	eventsFile     = "events.log"
	reportLockFile = ".report.lock"
)

// IOError wraps artifact write failures; repeated occurrences are fatal.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CheckpointError means progress could not be persisted. Fatal.
type CheckpointError struct {
	Err error
}

func (e *CheckpointError) Error() string { return fmt.Sprintf("checkpoint: %v", e.Err) }
func (e *CheckpointError) Unwrap() error { return e.Err }

// Checkpoint is the atomically persisted workflow progress record.
type Checkpoint struct {
	WorkflowID     string    `json:"workflow_id"`
	ProjectID      string    `json:"project_id"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedPages []string  `json:"completed_pages"`
	PendingPages   []string  `json:"pending_pages"`
	FailedPages    []string  `json:"failed_pages"`
	SkippedPages   []string  `json:"skipped_pages"`
	ResumeToken    string    `json:"resume_token"`
}

// Counts summarizes terminal page states for metadata.
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// QualitySummary aggregates analysis quality for metadata.
type QualitySummary struct {
	AvgSummaryQuality float64 `json:"avg_summary_quality"`
	AvgFeatureQuality float64 `json:"avg_feature_quality"`
	PartialResults    int     `json:"partial_results"`
}

// ProjectMetadata is persisted as analysis-metadata.json.
type ProjectMetadata struct {
	ProjectID      string                   `json:"project_id"`
	SeedURL        string                   `json:"seed_url"`
	Domain         string                   `json:"domain"`
	CreatedAt      time.Time                `json:"created_at"`
	Settings       map[string]any           `json:"settings,omitempty"`
	Counts         Counts                   `json:"counts"`
	Quality        QualitySummary           `json:"quality_summary"`
	SessionMetrics []browser.SessionMetrics `json:"session_metrics,omitempty"`
}

// Store lays out and mutates one project's artifacts.
type Store struct {
	dir  string
	lock *fileLock

	checkpointMu sync.Mutex
	eventsMu     sync.Mutex
}

// NewStore creates (or reopens) the artifact tree for a project.
func NewStore(outputRoot, projectID string) (*Store, error) {
	dir := filepath.Join(outputRoot, projectID, baseDirName)
	for _, sub := range []string{pagesDirName, progressDirName, reportsDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, &IOError{Path: dir, Op: "mkdir", Err: err}
		}
	}
	return &Store{
		dir:  dir,
		lock: &fileLock{path: filepath.Join(dir, reportLockFile)},
	}, nil
}

// Dir returns the project's artifact root.
func (s *Store) Dir() string { return s.dir }

// atomicWrite writes via a temp file in the target directory and renames
// into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return &IOError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// PageJSONPath returns pages/page-<slug>.json.
func (s *Store) PageJSONPath(slug string) string {
	return filepath.Join(s.dir, pagesDirName, "page-"+slug+".json")
}

// PageMarkdownPath returns pages/page-<slug>.md.
func (s *Store) PageMarkdownPath(slug string) string {
	return filepath.Join(s.dir, pagesDirName, "page-"+slug+".md")
}

// WritePageResult persists the raw structured result for a page.
func (s *Store) WritePageResult(r *analysis.PageResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return &IOError{Path: s.PageJSONPath(r.PageID), Op: "marshal", Err: err}
	}
	return atomicWrite(s.PageJSONPath(r.PageID), data)
}

// ReadPageResult loads one persisted page result.
func (s *Store) ReadPageResult(slug string) (*analysis.PageResult, error) {
	data, err := os.ReadFile(s.PageJSONPath(slug))
	if err != nil {
		return nil, &IOError{Path: s.PageJSONPath(slug), Op: "read", Err: err}
	}
	var r analysis.PageResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &IOError{Path: s.PageJSONPath(slug), Op: "decode", Err: err}
	}
	return &r, nil
}

// WritePageMarkdown persists a per-page markdown document.
func (s *Store) WritePageMarkdown(slug, content string) error {
	return atomicWrite(s.PageMarkdownPath(slug), []byte(content))
}

// ListPageMarkdown returns the slugs of all per-page markdown files on
// disk, sorted for deterministic TOC generation.
func (s *Store) ListPageMarkdown() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, pagesDirName))
	if err != nil {
		return nil, &IOError{Path: s.dir, Op: "list", Err: err}
	}
	var slugs []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "page-") && strings.HasSuffix(name, ".md") {
			slugs = append(slugs, strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".md"))
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// WriteMasterReport publishes the master report: full rewrite, atomic
// rename, advisory lock held only around the rename.
func (s *Store) WriteMasterReport(content string) error {
	path := filepath.Join(s.dir, reportFile)
	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return &IOError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "close", Err: err}
	}

	if err := s.lock.acquire(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "lock", Err: err}
	}
	defer s.lock.release()
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Path: path, Op: "rename", Err: err}
	}
	logging.Artifacts().Debug("master report published",
		zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// ReadMasterReport returns the current master report, or empty when none
// has been published yet.
func (s *Store) ReadMasterReport() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &IOError{Path: reportFile, Op: "read", Err: err}
	}
	return string(data), nil
}

// WriteReport persists a named document under reports/.
func (s *Store) WriteReport(name, content string) error {
	return atomicWrite(filepath.Join(s.dir, reportsDirName, name), []byte(content))
}

// WriteMetadata persists analysis-metadata.json.
func (s *Store) WriteMetadata(meta *ProjectMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &IOError{Path: metadataFile, Op: "marshal", Err: err}
	}
	return atomicWrite(filepath.Join(s.dir, metadataFile), data)
}

// ReadMetadata loads analysis-metadata.json.
func (s *Store) ReadMetadata() (*ProjectMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err != nil {
		return nil, &IOError{Path: metadataFile, Op: "read", Err: err}
	}
	var meta ProjectMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &IOError{Path: metadataFile, Op: "decode", Err: err}
	}
	return &meta, nil
}

// SaveCheckpoint atomically replaces progress/checkpoint.json. Writes are
// totally ordered by the internal mutex and, across processes, by the
// advisory lock file.
func (s *Store) SaveCheckpoint(cp *Checkpoint) error {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return &CheckpointError{Err: err}
	}
	if err := s.lock.acquire(); err != nil {
		return &CheckpointError{Err: err}
	}
	defer s.lock.release()
	if err := atomicWrite(filepath.Join(s.dir, progressDirName, checkpointFile), data); err != nil {
		return &CheckpointError{Err: err}
	}
	return nil
}

// LoadCheckpoint reads the persisted checkpoint; nil when none exists.
func (s *Store) LoadCheckpoint() (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, progressDirName, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CheckpointError{Err: err}
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CheckpointError{Err: err}
	}
	return &cp, nil
}

// LoadCheckpointFrom reads a checkpoint from an explicit path; used by
// resume_workflow_from_checkpoint.
func LoadCheckpointFrom(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CheckpointError{Err: err}
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CheckpointError{Err: err}
	}
	return &cp, nil
}

// AppendEvent appends one JSON line to progress/events.log.
func (s *Store) AppendEvent(event any) error {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return &IOError{Path: eventsFile, Op: "marshal", Err: err}
	}
	path := filepath.Join(s.dir, progressDirName, eventsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return &IOError{Path: path, Op: "append", Err: err}
	}
	return nil
}

// ListArtifacts enumerates every file under the project root as paths
// relative to Dir(), sorted.
func (s *Store) ListArtifacts() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == reportLockFile || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, rerr := filepath.Rel(s.dir, path)
		if rerr != nil {
			return rerr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &IOError{Path: s.dir, Op: "walk", Err: err}
	}
	sort.Strings(out)
	return out, nil
}

// ReadArtifact returns an artifact's bytes by relative path, refusing
// traversal outside the project root.
func (s *Store) ReadArtifact(rel string) ([]byte, error) {
	clean := filepath.Clean("/" + rel)
	full := filepath.Join(s.dir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return nil, &IOError{Path: rel, Op: "read", Err: fmt.Errorf("path escapes project root")}
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, &IOError{Path: rel, Op: "read", Err: err}
	}
	return data, nil
}
