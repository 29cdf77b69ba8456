package orchestrator

import (
	"context"

	"webatlas/internal/analysis"
	"webatlas/internal/browser"
	"webatlas/internal/urlkit"
)

// Navigator abstracts browser navigation so tests can run the full
// pipeline without Chrome. The production implementation is rodNavigator.
type Navigator interface {
	Capture(ctx context.Context, url string) (*browser.PageSnapshot, error)
	Metrics() []browser.SessionMetrics
	Close()
}

// rodNavigator drives the real browser pool. Each Capture holds exactly
// one session for the page's lifetime.
type rodNavigator struct {
	pool *browser.Pool
	opts browser.NavigateOptions
}

// NewRodNavigator builds the production navigator.
func NewRodNavigator(pool *browser.Pool, opts browser.NavigateOptions) Navigator {
	return &rodNavigator{pool: pool, opts: opts}
}

func (n *rodNavigator) Capture(ctx context.Context, url string) (*browser.PageSnapshot, error) {
	sess, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer n.pool.Release(sess)
	return browser.NavigateAndExtract(ctx, sess, url, n.opts)
}

func (n *rodNavigator) Metrics() []browser.SessionMetrics { return n.pool.Metrics() }

func (n *rodNavigator) Close() { n.pool.Close() }

// pageProcessor is the workflow worker body: navigate, then run the
// two-step analysis. A navigation failure yields a step1_failed result so
// the partial record still lands on disk.
type pageProcessor struct {
	nav      Navigator
	analyzer *analysis.Analyzer
}

func (p *pageProcessor) Process(ctx context.Context, url string) (*analysis.PageResult, error) {
	snap, err := p.nav.Capture(ctx, url)
	if err != nil {
		result := failedNavigationResult(url, err)
		return result, err
	}
	return p.analyzer.AnalyzePage(ctx, snap)
}

// failedNavigationResult records a navigation failure as a page result so
// the master report can show it.
func failedNavigationResult(url string, err error) *analysis.PageResult {
	pageID := url
	if n, nerr := urlkit.Normalize(url); nerr == nil {
		pageID = urlkit.Slugify(n)
	}
	kind := "NavigationError"
	if ne, ok := err.(*browser.NavigationError); ok {
		switch ne.Kind {
		case browser.FailTimeout:
			kind = "NavigationTimeout"
		case browser.FailHTTP:
			kind = "NavigationFailure"
		case browser.FailCrash:
			kind = "BrowserCrash"
		}
	}
	return &analysis.PageResult{
		PageID: pageID,
		URL:    url,
		Step1:  analysis.StepFailed,
		Step2:  analysis.StepSkipped,
		Errors: []analysis.ErrorRecord{{Kind: kind, Message: err.Error()}},
	}
}
