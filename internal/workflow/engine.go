package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webatlas/internal/analysis"
	"webatlas/internal/artifacts"
	"webatlas/internal/logging"
)

// PageProcessor turns one URL into a PageResult. The returned result may
// be partial even when err is non-nil; the engine persists whatever came
// back before marking the page failed.
type PageProcessor interface {
	Process(ctx context.Context, url string) (*analysis.PageResult, error)
}

// PageProcessorFunc adapts a function to PageProcessor.
type PageProcessorFunc func(ctx context.Context, url string) (*analysis.PageResult, error)

// Process implements PageProcessor.
func (f PageProcessorFunc) Process(ctx context.Context, url string) (*analysis.PageResult, error) {
	return f(ctx, url)
}

// Options configures an engine run.
type Options struct {
	MaxConcurrent       int
	MaxRetriesPerPage   int // default 1
	EnableCheckpointing bool
	// OnPageDone runs after a page reaches a terminal state and its
	// artifacts are persisted, before the terminal progress event.
	OnPageDone func(url string, state PageState, result *analysis.PageResult)
	// Emit receives every progress event; may be nil. Called from worker
	// goroutines under the engine lock, so implementations must not call
	// back into the engine.
	Emit func(ProgressEvent)
}

// Engine is the sequential workflow engine. One engine drives one queue
// to completion; construct a new engine to run again.
type Engine struct {
	ID    string
	store *artifacts.Store
	proc  PageProcessor
	opts  Options

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	order   []string
	states  map[string]PageState
	results map[string]*analysis.PageResult
	emaMs   float64
	running int
}

// NewEngine builds an engine over an ordered page list. The list must
// already be in priority order; the engine dequeues front to back.
func NewEngine(store *artifacts.Store, proc PageProcessor, pages []string, opts Options) *Engine {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxRetriesPerPage < 0 {
		opts.MaxRetriesPerPage = 0
	} else if opts.MaxRetriesPerPage == 0 {
		opts.MaxRetriesPerPage = 1
	}
	e := &Engine{
		ID:      uuid.NewString(),
		store:   store,
		proc:    proc,
		opts:    opts,
		state:   StateIdle,
		order:   append([]string(nil), pages...),
		states:  make(map[string]PageState, len(pages)),
		results: make(map[string]*analysis.PageResult, len(pages)),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, u := range pages {
		e.states[u] = PageQueued
	}
	return e
}

// ApplyCheckpoint seeds terminal states from a previous run. Completed
// and skipped pages are never re-processed; failed pages re-queue only
// when retryFailed is set.
func (e *Engine) ApplyCheckpoint(cp *artifacts.Checkpoint, retryFailed bool) {
	if cp == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range cp.CompletedPages {
		if _, ok := e.states[u]; ok {
			e.states[u] = PageCompleted
		}
	}
	for _, u := range cp.SkippedPages {
		if _, ok := e.states[u]; ok {
			e.states[u] = PageSkipped
		}
	}
	if !retryFailed {
		for _, u := range cp.FailedPages {
			if _, ok := e.states[u]; ok {
				e.states[u] = PageFailed
			}
		}
	}
}

// Run processes the queue until drained or stopped. Blocking; returns the
// final workflow state. In-flight pages always finalize and persist, even
// on stop.
func (e *Engine) Run(ctx context.Context) (State, error) {
	log := logging.Workflow()
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return e.state, nil
	}
	e.setStateLocked(StateRunning)
	e.mu.Unlock()

	log.Info("workflow started",
		zap.String("workflow_id", e.ID),
		zap.Int("pages", len(e.order)),
		zap.Int("concurrency", e.opts.MaxConcurrent))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.opts.MaxConcurrent)

	for {
		// Take a worker slot before dequeuing so pause/stop are observed
		// at the dequeue barrier, not after.
		sem <- struct{}{}
		url, ok := e.nextPage(ctx)
		if !ok {
			<-sem
			break
		}
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processPage(ctx, u)
		}(url)
	}
	wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		log.Info("workflow stopped", zap.String("workflow_id", e.ID))
		return StateStopped, nil
	}
	e.setStateLocked(StateCompleted)
	log.Info("workflow completed", zap.String("workflow_id", e.ID))
	return StateCompleted, nil
}

// nextPage blocks while paused and returns the next queued URL, or false
// when the queue is exhausted or the workflow is stopping.
func (e *Engine) nextPage(ctx context.Context) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if ctx.Err() != nil || e.state == StateStopped {
			return "", false
		}
		if e.state == StatePaused {
			e.cond.Wait()
			continue
		}
		for _, u := range e.order {
			if e.states[u] == PageQueued {
				e.states[u] = PageRunning
				e.running++
				e.emitLocked(u, PageQueued, PageRunning)
				return u, true
			}
		}
		return "", false
	}
}

// processPage runs one page through the processor with the retry policy,
// persists its artifacts, checkpoints, and emits the terminal event.
func (e *Engine) processPage(ctx context.Context, url string) {
	log := logging.Workflow()
	start := time.Now()

	var result *analysis.PageResult
	var err error
	attempts := e.opts.MaxRetriesPerPage + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Info("retrying page", zap.String("url", url), zap.Int("attempt", attempt+1))
		}
		result, err = e.proc.Process(ctx, url)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Persist whatever we have, including partial results, before the
	// terminal event becomes visible.
	if result != nil && e.store != nil {
		if werr := e.store.WritePageResult(result); werr != nil {
			log.Error("persist page result", zap.String("url", url), zap.Error(werr))
		}
	}

	terminal := PageCompleted
	if err != nil {
		terminal = PageFailed
	}

	e.mu.Lock()
	e.states[url] = terminal
	e.running--
	if result != nil {
		e.results[url] = result
	}
	elapsed := float64(time.Since(start).Milliseconds())
	if e.emaMs == 0 {
		e.emaMs = elapsed
	} else {
		e.emaMs = emaAlpha*elapsed + (1-emaAlpha)*e.emaMs
	}
	e.mu.Unlock()

	if e.opts.OnPageDone != nil {
		e.opts.OnPageDone(url, terminal, result)
	}
	if e.opts.EnableCheckpointing && e.store != nil {
		if cerr := e.store.SaveCheckpoint(e.Checkpoint()); cerr != nil {
			log.Error("checkpoint write failed", zap.Error(cerr))
		}
	}

	e.mu.Lock()
	e.emitLocked(url, PageRunning, terminal)
	e.mu.Unlock()
}

// Pause stops new dequeues; in-flight pages finish.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return
	}
	e.setStateLocked(StatePaused)
}

// Resume continues a paused workflow.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return
	}
	e.setStateLocked(StateRunning)
	e.cond.Broadcast()
}

// Stop ends the workflow cooperatively: no new dequeues, in-flight pages
// finalize and persist.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateCompleted || e.state == StateStopped {
		return
	}
	e.setStateLocked(StateStopped)
	e.cond.Broadcast()
}

// Skip marks a queued page skipped and removes it from pending. Running
// or terminal pages are left alone.
func (e *Engine) Skip(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.states[url] != PageQueued {
		return false
	}
	e.states[url] = PageSkipped
	e.emitLocked(url, PageQueued, PageSkipped)
	return true
}

// CurrentState returns the workflow state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CountsNow returns the page-state census.
func (e *Engine) CountsNow() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countsLocked()
}

// Results returns the collected page results keyed by URL.
func (e *Engine) Results() map[string]*analysis.PageResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*analysis.PageResult, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// Checkpoint snapshots progress for persistence.
func (e *Engine) Checkpoint() *artifacts.Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := &artifacts.Checkpoint{
		WorkflowID:  e.ID,
		CreatedAt:   time.Now().UTC(),
		ResumeToken: e.ID,
	}
	for _, u := range e.order {
		switch e.states[u] {
		case PageCompleted:
			cp.CompletedPages = append(cp.CompletedPages, u)
		case PageFailed:
			cp.FailedPages = append(cp.FailedPages, u)
		case PageSkipped:
			cp.SkippedPages = append(cp.SkippedPages, u)
		default:
			cp.PendingPages = append(cp.PendingPages, u)
		}
	}
	return cp
}

func (e *Engine) countsLocked() Counts {
	var c Counts
	for _, u := range e.order {
		switch e.states[u] {
		case PageCompleted:
			c.Completed++
		case PageFailed:
			c.Failed++
		case PageSkipped:
			c.Skipped++
		case PageRunning:
			c.Running++
		default:
			c.Pending++
		}
	}
	return c
}

func (e *Engine) setStateLocked(to State) {
	from := e.state
	e.state = to
	e.emitEventLocked(ProgressEvent{
		Timestamp:  time.Now().UTC(),
		WorkflowID: e.ID,
		FromState:  string(from),
		ToState:    string(to),
		Counts:     e.countsLocked(),
		ETAMs:      e.etaLocked(),
	})
}

func (e *Engine) emitLocked(url string, from, to PageState) {
	e.emitEventLocked(ProgressEvent{
		Timestamp:  time.Now().UTC(),
		WorkflowID: e.ID,
		PageURL:    url,
		FromState:  string(from),
		ToState:    string(to),
		Counts:     e.countsLocked(),
		ETAMs:      e.etaLocked(),
	})
}

func (e *Engine) emitEventLocked(ev ProgressEvent) {
	if e.store != nil {
		if err := e.store.AppendEvent(ev); err != nil {
			logging.Workflow().Warn("event append failed", zap.Error(err))
		}
	}
	if e.opts.Emit != nil {
		e.opts.Emit(ev)
	}
}

// etaLocked estimates remaining wall time from the EMA of per-page
// durations and the live concurrency.
func (e *Engine) etaLocked() int64 {
	c := e.countsLocked()
	remaining := c.Pending + c.Running
	if remaining == 0 || e.emaMs == 0 {
		return 0
	}
	workers := e.opts.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	return int64(e.emaMs * float64(remaining) / float64(workers))
}
