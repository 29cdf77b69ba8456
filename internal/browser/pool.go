package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"webatlas/internal/logging"
)

// Engine selects the browser binary family. Only chromium is wired; the
// rod launcher drives Chrome/Chromium over CDP.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebkit   Engine = "webkit"
)

const (
	defaultPoolSize = 3
	maxPoolSize     = 5
)

// SessionMetrics is the per-session usage snapshot.
type SessionMetrics struct {
	SessionID   string        `json:"session_id"`
	Pages       int           `json:"pages_processed"`
	TotalLoad   int64         `json:"total_load_ms"`
	AcquiredAt  time.Time     `json:"acquired_at"`
	ReleasedAt  time.Time     `json:"released_at,omitempty"`
	Disposed    bool          `json:"disposed"`
}

// Session is one pooled incognito browser context. A session is owned by
// exactly one worker between Acquire and Release.
type Session struct {
	ID      string
	browser *rod.Browser
	metrics SessionMetrics
	healthy bool
}

// MarkUnhealthy flags the session for disposal on release; callers do this
// after a crash-classified failure.
func (s *Session) MarkUnhealthy() { s.healthy = false }

// RecordPage accumulates navigation metrics.
func (s *Session) RecordPage(loadTime time.Duration) {
	s.metrics.Pages++
	s.metrics.TotalLoad += loadTime.Milliseconds()
}

// PoolConfig configures the session pool.
type PoolConfig struct {
	Size     int
	Engine   Engine
	Headless bool
	// LaunchBin overrides the browser binary path when set.
	LaunchBin string
}

// Pool maintains up to Size live browser sessions. Acquire blocks until a
// slot frees; Release returns (or disposes and replenishes) a session.
// Close tears everything down; it is safe on every exit path.
type Pool struct {
	cfg PoolConfig

	mu       sync.Mutex
	launched *rod.Browser
	ctl      string
	idle     []*Session
	inUse    map[string]*Session
	retired  []SessionMetrics
	closed   bool

	slots chan struct{}
}

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// NewPool creates a session pool. The underlying browser process launches
// lazily on first Acquire.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = defaultPoolSize
	}
	if cfg.Size > maxPoolSize {
		cfg.Size = maxPoolSize
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineChromium
	}
	p := &Pool{
		cfg:   cfg,
		inUse: make(map[string]*Session),
		slots: make(chan struct{}, cfg.Size),
	}
	for i := 0; i < cfg.Size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// ensureBrowserLocked launches or reuses the shared browser process.
func (p *Pool) ensureBrowserLocked() error {
	if p.launched != nil {
		return nil
	}
	if p.cfg.Engine != EngineChromium {
		return fmt.Errorf("engine %s not supported by the rod launcher; use chromium", p.cfg.Engine)
	}

	l := launcher.New().Headless(p.cfg.Headless)
	if p.cfg.LaunchBin != "" {
		l = l.Bin(p.cfg.LaunchBin)
	}
	ctl, err := l.Launch()
	if err != nil {
		return &NavigationError{Kind: FailCrash, Msg: "launch browser: " + err.Error()}
	}

	b := rod.New().ControlURL(ctl)
	if err := b.Connect(); err != nil {
		return &NavigationError{Kind: FailCrash, Msg: "connect browser: " + err.Error()}
	}
	p.launched = b
	p.ctl = ctl
	logging.Browser().Info("browser launched", zap.String("engine", string(p.cfg.Engine)), zap.Bool("headless", p.cfg.Headless))
	return nil
}

// Acquire returns a healthy session, blocking while the pool is saturated.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case _, ok := <-p.slots:
		if !ok {
			return nil, ErrPoolClosed
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.metrics.AcquiredAt = time.Now()
		p.inUse[s.ID] = s
		return s, nil
	}

	if err := p.ensureBrowserLocked(); err != nil {
		p.slots <- struct{}{}
		return nil, err
	}

	s := &Session{
		ID:      uuid.NewString(),
		browser: p.launched,
		healthy: true,
	}
	s.metrics.SessionID = s.ID
	s.metrics.AcquiredAt = time.Now()
	p.inUse[s.ID] = s
	logging.Browser().Debug("session acquired", zap.String("session", s.ID))
	return s, nil
}

// Release returns a session to the pool. Unhealthy sessions are disposed
// and their slot freed so the next Acquire replenishes.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inUse, s.ID)
	s.metrics.ReleasedAt = time.Now()

	if p.closed {
		s.metrics.Disposed = true
		p.retired = append(p.retired, s.metrics)
		return
	}

	if !s.healthy {
		s.metrics.Disposed = true
		p.retired = append(p.retired, s.metrics)
		logging.Browser().Warn("disposing unhealthy session", zap.String("session", s.ID))
	} else {
		p.idle = append(p.idle, s)
	}
	p.slots <- struct{}{}
}

// Metrics returns usage for every session the pool has seen.
func (p *Pool) Metrics() []SessionMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SessionMetrics, 0, len(p.retired)+len(p.idle)+len(p.inUse))
	out = append(out, p.retired...)
	for _, s := range p.idle {
		out = append(out, s.metrics)
	}
	for _, s := range p.inUse {
		out = append(out, s.metrics)
	}
	return out
}

// Close disposes all sessions and the browser process. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, s := range p.idle {
		s.metrics.Disposed = true
		p.retired = append(p.retired, s.metrics)
	}
	p.idle = nil
	b := p.launched
	p.launched = nil
	close(p.slots)
	p.mu.Unlock()

	if b != nil {
		if err := b.Close(); err != nil {
			logging.Browser().Warn("browser close", zap.Error(err))
		}
	}
	logging.Browser().Info("browser pool closed")
}
