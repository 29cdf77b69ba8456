package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/analysis"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "proj-1")
	require.NoError(t, err)
	return s
}

func TestNewStoreCreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, "proj-1")
	require.NoError(t, err)

	for _, sub := range []string{"pages", "progress", "reports"} {
		info, err := os.Stat(filepath.Join(s.Dir(), sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
	assert.True(t, strings.HasSuffix(filepath.ToSlash(s.Dir()), "proj-1/docs/web_discovery"))
}

func TestPageResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r := &analysis.PageResult{
		PageID: "example-com-about",
		URL:    "https://example.com/about",
		Step1:  analysis.StepDone,
		Step2:  analysis.StepDone,
		Summary: &analysis.ContentSummary{
			ID:      "example-com-about-summary",
			Purpose: "About page",
		},
	}
	require.NoError(t, s.WritePageResult(r))

	got, err := s.ReadPageResult("example-com-about")
	require.NoError(t, err)
	assert.Equal(t, r.URL, got.URL)
	assert.Equal(t, r.Summary.ID, got.Summary.ID)
}

func TestWriteMasterReportAtomicAndReadable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteMasterReport("# Report v1\n"))
	require.NoError(t, s.WriteMasterReport("# Report v2\n"))

	content, err := s.ReadMasterReport()
	require.NoError(t, err)
	assert.Equal(t, "# Report v2\n", content)

	// No stray temp files survive.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".report-"), e.Name())
	}
}

func TestMasterReportConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.WriteMasterReport(strings.Repeat("x", 1000+n))
		}(i)
	}
	wg.Wait()

	content, err := s.ReadMasterReport()
	require.NoError(t, err)
	// Whatever writer won, the file is a complete single write.
	assert.GreaterOrEqual(t, len(content), 1000)
	assert.LessOrEqual(t, len(content), 1007)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cp := &Checkpoint{
		WorkflowID:     "wf-1",
		ProjectID:      "proj-1",
		CreatedAt:      time.Now().UTC(),
		CompletedPages: []string{"https://example.com/", "https://example.com/about"},
		PendingPages:   []string{"https://example.com/contact"},
		ResumeToken:    "tok",
	}
	require.NoError(t, s.SaveCheckpoint(cp))

	got, err := s.LoadCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, cp.CompletedPages, got.CompletedPages)
	assert.Equal(t, cp.PendingPages, got.PendingPages)

	// Explicit-path load used by resume.
	got2, err := LoadCheckpointFrom(filepath.Join(s.Dir(), "progress", "checkpoint.json"))
	require.NoError(t, err)
	assert.Equal(t, cp.WorkflowID, got2.WorkflowID)
}

func TestLoadCheckpointAbsentIsNil(t *testing.T) {
	s := newTestStore(t)
	cp, err := s.LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestAppendEventJSONLines(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendEvent(map[string]any{"type": "a"}))
	require.NoError(t, s.AppendEvent(map[string]any{"type": "b"}))

	data, err := os.ReadFile(filepath.Join(s.Dir(), "progress", "events.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"a"`)
}

func TestListArtifactsAndRead(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WritePageMarkdown("example-com", "# Home\n"))
	require.NoError(t, s.WriteMasterReport("# Report\n"))
	require.NoError(t, s.WriteReport("cost-estimate.md", "costs\n"))

	list, err := s.ListArtifacts()
	require.NoError(t, err)
	assert.Contains(t, list, "analysis-report.md")
	assert.Contains(t, list, "pages/page-example-com.md")
	assert.Contains(t, list, "reports/cost-estimate.md")

	data, err := s.ReadArtifact("pages/page-example-com.md")
	require.NoError(t, err)
	assert.Equal(t, "# Home\n", string(data))
}

func TestReadArtifactRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadArtifact("../../../etc/passwd")
	assert.Error(t, err)
}

func TestListPageMarkdownSorted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WritePageMarkdown("zeta", "z"))
	require.NoError(t, s.WritePageMarkdown("alpha", "a"))

	slugs, err := s.ListPageMarkdown()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, slugs)
}

func TestStaleLockTakenOver(t *testing.T) {
	s := newTestStore(t)
	lockPath := filepath.Join(s.Dir(), ".report.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("999999\n"), 0o644))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	require.NoError(t, s.WriteMasterReport("# fresh\n"))
}
