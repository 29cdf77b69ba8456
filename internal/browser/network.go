package browser

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"webatlas/internal/urlkit"
)

// networkMonitor hooks CDP request/response events for a page's lifetime
// and derives the API-endpoint and third-party views.
type networkMonitor struct {
	page       *rod.Page
	seedDomain string

	mu        sync.Mutex
	events    map[string]*NetworkEvent // by request id
	order     []string
	inFlight  int
	lastQuiet time.Time
	docStatus int
	docHops   int
	done      chan struct{}
}

func newNetworkMonitor(page *rod.Page, seedDomain string) *networkMonitor {
	return &networkMonitor{
		page:       page,
		seedDomain: seedDomain,
		events:     make(map[string]*NetworkEvent),
		lastQuiet:  time.Now(),
		done:       make(chan struct{}),
	}
}

// start begins consuming network events in a goroutine. stop must be
// called before reading the log.
func (m *networkMonitor) start() {
	wait := m.page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			m.mu.Lock()
			defer m.mu.Unlock()

			if ev.Type == proto.NetworkResourceTypeDocument && ev.RedirectResponse != nil {
				m.docHops++
			}
			id := string(ev.RequestID)
			if _, seen := m.events[id]; !seen {
				e := &NetworkEvent{
					Timestamp: time.Now(),
					Method:    ev.Request.Method,
					URL:       ev.Request.URL,
				}
				if n, err := urlkit.Normalize(ev.Request.URL); err == nil {
					e.IsThirdParty = !strings.EqualFold(n.Domain, m.seedDomain)
				}
				e.ReqHeaders = flattenHeaders(ev.Request.Headers)
				m.events[id] = e
				m.order = append(m.order, id)
				m.inFlight++
			}
		},
		func(ev *proto.NetworkResponseReceived) {
			m.mu.Lock()
			defer m.mu.Unlock()

			e, ok := m.events[string(ev.RequestID)]
			if !ok {
				return
			}
			e.Status = ev.Response.Status
			e.ContentType = ev.Response.MIMEType
			e.RespHeaders = flattenRespHeaders(ev.Response.Headers)
			if ev.Response.EncodedDataLength > 0 {
				e.RespSize = int64(ev.Response.EncodedDataLength)
			}
			if ev.Response.Timing != nil {
				e.TimingMs = ev.Response.Timing.ReceiveHeadersEnd
			}
			if ev.Type == proto.NetworkResourceTypeDocument && m.docStatus == 0 {
				m.docStatus = ev.Response.Status
			}
		},
		func(ev *proto.NetworkLoadingFinished) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.inFlight > 0 {
				m.inFlight--
			}
			m.lastQuiet = time.Now()
		},
		func(ev *proto.NetworkLoadingFailed) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.inFlight > 0 {
				m.inFlight--
			}
			m.lastQuiet = time.Now()
		},
	)
	go func() {
		defer close(m.done)
		wait()
	}()
}

func (m *networkMonitor) stop() {
	// EachEvent's wait returns when the page context ends; closing the
	// page (the navigator's defer) unblocks it. Nothing to do here beyond
	// giving the goroutine a moment to drain.
	select {
	case <-m.done:
	case <-time.After(250 * time.Millisecond):
	}
}

// waitIdle blocks until the network has been quiet for 500ms with at most
// two requests in flight, or the timeout budget (measured from start)
// expires.
func (m *networkMonitor) waitIdle(ctx context.Context, timeout time.Duration, start time.Time) {
	deadline := start.Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return
		}
		m.mu.Lock()
		quietFor := time.Since(m.lastQuiet)
		inFlight := m.inFlight
		m.mu.Unlock()
		if inFlight <= idleMaxInFlight && quietFor >= idleQuietWindow {
			return
		}
	}
}

// documentStatus returns the main document's HTTP status and redirect hops.
func (m *networkMonitor) documentStatus() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docStatus, m.docHops
}

var apiPathPattern = regexp.MustCompile(`/api/|/graphql|/v\d+/`)

// staticExtensions filters obvious asset traffic out of the API view.
var staticExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".map",
}

// log snapshots the ordered event list and derives the API-endpoint and
// third-party views.
func (m *networkMonitor) log() NetworkLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := NetworkLog{Events: make([]NetworkEvent, 0, len(m.order))}
	endpoints := make(map[string]*APIEndpoint)
	var endpointOrder []string
	thirdParty := make(map[string]int)

	for _, id := range m.order {
		e := m.events[id]
		out.Events = append(out.Events, *e)

		if e.IsThirdParty {
			if n, err := urlkit.Normalize(e.URL); err == nil {
				thirdParty[n.Domain]++
			}
		}
		if isAPIEvent(e) {
			key := e.Method + " " + endpointPath(e.URL)
			if ep, ok := endpoints[key]; ok {
				ep.Count++
			} else {
				endpoints[key] = &APIEndpoint{
					Method:      e.Method,
					Endpoint:    endpointPath(e.URL),
					ContentType: e.ContentType,
					Count:       1,
				}
				endpointOrder = append(endpointOrder, key)
			}
		}
	}

	for _, key := range endpointOrder {
		out.APIEndpoints = append(out.APIEndpoints, *endpoints[key])
	}

	domains := make([]string, 0, len(thirdParty))
	for d := range thirdParty {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		out.ThirdParties = append(out.ThirdParties, ThirdParty{Domain: d, Requests: thirdParty[d]})
	}
	return out
}

// isAPIEvent classifies a network event as API-shaped: JSON/XML content
// type or an API-looking path, and not a static asset.
func isAPIEvent(e *NetworkEvent) bool {
	lower := strings.ToLower(e.URL)
	for _, ext := range staticExtensions {
		if strings.Contains(lower, ext+"?") || strings.HasSuffix(lower, ext) {
			return false
		}
	}
	ct := strings.ToLower(e.ContentType)
	if strings.Contains(ct, "json") || strings.Contains(ct, "xml") {
		return true
	}
	if n, err := urlkit.Normalize(e.URL); err == nil {
		return apiPathPattern.MatchString(n.Path)
	}
	return false
}

func endpointPath(raw string) string {
	n, err := urlkit.Normalize(raw)
	if err != nil {
		return raw
	}
	return n.Scheme + "://" + n.Host + n.Path
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v.String()
	}
	return out
}

func flattenRespHeaders(h proto.NetworkHeaders) map[string]string {
	return flattenHeaders(h)
}
