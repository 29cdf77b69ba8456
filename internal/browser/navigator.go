package browser

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"webatlas/internal/logging"
	"webatlas/internal/urlkit"
)

// NavigateOptions tunes one navigation/capture run.
type NavigateOptions struct {
	Timeout             time.Duration // default 30s
	MaxRetries          int           // default 2, backoff 1s/2s/4s
	WaitForNetworkIdle  bool
	EnableScreenshot    bool
	CaptureNetwork      bool
	CaptureInteractions bool
}

// DefaultNavigateOptions mirrors the documented defaults.
func DefaultNavigateOptions() NavigateOptions {
	return NavigateOptions{
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		WaitForNetworkIdle: true,
		CaptureNetwork:     true,
	}
}

const (
	idleQuietWindow  = 500 * time.Millisecond
	idleMaxInFlight  = 2
	maxRedirectHops  = 5
	maxInteractions  = 5
)

// NavigateAndExtract navigates a session to a URL and captures a full
// snapshot. Failed attempts retry with exponential backoff (1s, 2s, 4s)
// up to MaxRetries; HTTP ≥400 fails without retry.
func NavigateAndExtract(ctx context.Context, sess *Session, rawURL string, opts NavigateOptions) (*PageSnapshot, error) {
	log := logging.Browser()
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	// Defensive re-normalization; the workflow already normalizes but the
	// navigator is also a public entry point.
	norm, err := urlkit.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Second << (attempt - 1)
			log.Debug("navigation retry",
				zap.String("url", norm.URL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return nil, &NavigationError{Kind: FailTimeout, URL: norm.URL, Msg: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}

		snap, err := navigateOnce(ctx, sess, norm, opts)
		if err == nil {
			sess.RecordPage(time.Duration(snap.LoadTimeMs) * time.Millisecond)
			return snap, nil
		}
		var navErr *NavigationError
		if ok := asNavigationError(err, &navErr); ok && !navErr.Retryable() {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func asNavigationError(err error, target **NavigationError) bool {
	ne, ok := err.(*NavigationError)
	if ok {
		*target = ne
	}
	return ok
}

// navigateOnce runs one navigation attempt with full capture.
func navigateOnce(ctx context.Context, sess *Session, norm urlkit.NormalizedURL, opts NavigateOptions) (snap *PageSnapshot, err error) {
	start := time.Now()

	// Rod surfaces CDP failures as panics in its fluent API; convert them
	// into crash-classified errors so the pool can replenish.
	defer func() {
		if r := recover(); r != nil {
			sess.MarkUnhealthy()
			err = &NavigationError{Kind: FailCrash, URL: norm.URL, Msg: stringify(r)}
		}
	}()

	incognito, ierr := sess.browser.Incognito()
	if ierr != nil {
		sess.MarkUnhealthy()
		return nil, &NavigationError{Kind: FailCrash, URL: norm.URL, Msg: ierr.Error()}
	}

	page, perr := incognito.Page(proto.TargetCreateTarget{})
	if perr != nil {
		sess.MarkUnhealthy()
		return nil, &NavigationError{Kind: FailCrash, URL: norm.URL, Msg: perr.Error()}
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(opts.Timeout)

	var monitor *networkMonitor
	if opts.CaptureNetwork || opts.WaitForNetworkIdle {
		monitor = newNetworkMonitor(page, norm.Domain)
		monitor.start()
		defer monitor.stop()
	}

	if nerr := page.Navigate(norm.URL); nerr != nil {
		return nil, classifyNavError(norm.URL, nerr)
	}
	if werr := page.WaitLoad(); werr != nil {
		return nil, classifyNavError(norm.URL, werr)
	}
	if opts.WaitForNetworkIdle && monitor != nil {
		monitor.waitIdle(ctx, opts.Timeout, start)
	}

	info, ierr2 := page.Info()
	if ierr2 != nil {
		return nil, classifyNavError(norm.URL, ierr2)
	}

	status, hops := 0, 0
	if monitor != nil {
		status, hops = monitor.documentStatus()
	}
	if hops > maxRedirectHops {
		return nil, &NavigationError{Kind: FailHTTP, URL: norm.URL, Status: status,
			Msg: "redirect chain exceeded 5 hops"}
	}
	if status >= 400 {
		return nil, &NavigationError{Kind: FailHTTP, URL: norm.URL, Status: status}
	}

	snap = &PageSnapshot{
		URL:        norm.URL,
		FinalURL:   info.URL,
		StatusCode: status,
		LoadTimeMs: time.Since(start).Milliseconds(),
	}

	if html, herr := page.HTML(); herr == nil {
		snap.HTML = html
	}
	extractDocument(page, snap)
	if opts.CaptureNetwork && monitor != nil {
		snap.Network = monitor.log()
	}
	if opts.EnableScreenshot {
		if shot, serr := page.Screenshot(false, nil); serr == nil {
			snap.Screenshot = shot
		}
	}
	if opts.CaptureInteractions {
		snap.InteractionLog = runSafeInteractions(page, norm.URL)
	}

	logging.Browser().Info("page captured",
		zap.String("url", norm.URL),
		zap.Int("status", status),
		zap.Int64("load_ms", snap.LoadTimeMs),
		zap.Int("network_events", len(snap.Network.Events)))
	return snap, nil
}

func classifyNavError(url string, err error) *NavigationError {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout") {
		return &NavigationError{Kind: FailTimeout, URL: url, Msg: msg}
	}
	return &NavigationError{Kind: FailCrash, URL: url, Msg: msg}
}

func stringify(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// documentExtract is the JSON shape returned by the in-page extraction
// script.
type documentExtract struct {
	Title       string            `json:"title"`
	Text        string            `json:"text"`
	Meta        map[string]string `json:"meta"`
	Canonical   string            `json:"canonical"`
	Lang        string            `json:"lang"`
	Viewport    string            `json:"viewport"`
	Stats       DOMStats          `json:"stats"`
	TechSignals []string          `json:"tech"`
}

// extractDocument pulls title, visible text, meta tags, structure counts,
// and technology signals in a single page evaluation.
func extractDocument(page *rod.Page, snap *PageSnapshot) {
	res, err := page.Evaluate(&rod.EvalOptions{
		ByValue:      true,
		AwaitPromise: true,
		JS: `
		() => {
			const meta = {};
			for (const m of document.querySelectorAll('meta[name], meta[property]')) {
				const key = m.getAttribute('name') || m.getAttribute('property');
				if (key && !meta[key]) meta[key] = m.getAttribute('content') || '';
			}
			const canonicalEl = document.querySelector('link[rel="canonical"]');

			const tech = [];
			const push = (t) => { if (!tech.includes(t)) tech.push(t); };
			if (window.React || document.querySelector('[data-reactroot], #root [data-reactid]')) push('react');
			if (window.__NEXT_DATA__) push('nextjs');
			if (window.Vue || document.querySelector('[data-v-app], [v-cloak]')) push('vue');
			if (window.angular || document.querySelector('[ng-app], [ng-version]')) push('angular');
			if (window.jQuery) push('jquery');
			if (document.querySelector('meta[name="generator"][content*="WordPress"]')) push('wordpress');
			if (document.querySelector('meta[name="generator"][content*="Drupal"]')) push('drupal');
			for (const s of document.querySelectorAll('script[src]')) {
				const src = s.src.toLowerCase();
				if (src.includes('react')) push('react');
				if (src.includes('vue')) push('vue');
				if (src.includes('angular')) push('angular');
				if (src.includes('jquery')) push('jquery');
			}

			return {
				title: document.title || '',
				text: (document.body ? document.body.innerText : '').slice(0, 65536),
				meta,
				canonical: canonicalEl ? canonicalEl.href : '',
				lang: document.documentElement.lang || '',
				viewport: meta['viewport'] || '',
				stats: {
					nodes: document.querySelectorAll('*').length,
					links: document.querySelectorAll('a[href]').length,
					forms: document.forms.length,
					inputs: document.querySelectorAll('input, select, textarea').length,
					buttons: document.querySelectorAll('button, input[type="submit"], [role="button"]').length,
					scripts: document.querySelectorAll('script').length,
					images: document.querySelectorAll('img').length,
					tables: document.querySelectorAll('table').length,
					iframes: document.querySelectorAll('iframe').length
				},
				tech
			};
		}`,
	})
	if err != nil || res == nil {
		return
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return
	}
	var doc documentExtract
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}

	snap.Title = doc.Title
	snap.VisibleText = doc.Text
	snap.Meta = doc.Meta
	snap.Canonical = doc.Canonical
	snap.Language = doc.Lang
	snap.Viewport = doc.Viewport
	snap.DOMStats = doc.Stats
	snap.TechSignals = doc.TechSignals
}
