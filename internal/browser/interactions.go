package browser

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"webatlas/internal/logging"
)

// destructiveKeywords blocks interactions that could mutate remote state.
// The deny-list is authoritative: anything matching is never touched.
var destructiveKeywords = []string{
	"delete", "remove", "cancel", "logout", "log out", "sign out",
	"unsubscribe", "destroy", "deactivate", "pay", "purchase", "submit",
}

// interactionCandidate is one element the in-page planner proposes.
type interactionCandidate struct {
	Selector string `json:"selector"`
	Action   string `json:"action"` // hover, focus, click
	Text     string `json:"text"`
	InForm   bool   `json:"inForm"`
}

// runSafeInteractions executes a bounded interaction plan: hover/focus on
// menus and inputs, clicks only on inert disclosure elements. A click that
// navigates is rolled back by re-navigating to the original URL.
func runSafeInteractions(page *rod.Page, originalURL string) []InteractionStep {
	log := logging.Browser()
	candidates := planInteractions(page)
	if len(candidates) == 0 {
		return nil
	}

	var steps []InteractionStep
	for _, c := range candidates {
		if len(steps) >= maxInteractions {
			break
		}
		if isDestructive(c) {
			continue
		}

		step := InteractionStep{Action: c.Action, Selector: c.Selector, Outcome: "ok"}
		before := nodeCount(page)

		el, err := page.Timeout(pageActionTimeout).Element(c.Selector)
		if err != nil {
			continue
		}
		switch c.Action {
		case "hover":
			err = el.Hover()
		case "focus":
			err = el.Focus()
		case "click":
			err = el.Click(proto.InputMouseButtonLeft, 1)
		}
		if err != nil {
			step.Outcome = "error"
			steps = append(steps, step)
			continue
		}

		if info, ierr := page.Info(); ierr == nil && info.URL != originalURL {
			// Interaction navigated away; undo and record.
			if nerr := page.Navigate(originalURL); nerr == nil {
				_ = page.WaitLoad()
			}
			step.Outcome = "navigation-rolled-back"
		}
		step.DOMChanged = nodeCount(page) != before
		steps = append(steps, step)
	}

	log.Debug("interaction capture done", zap.Int("steps", len(steps)))
	return steps
}

const pageActionTimeout = 5 * time.Second

// planInteractions asks the page for safe interaction candidates: nav
// menus to hover, inputs to focus, and inert disclosure widgets to click.
func planInteractions(page *rod.Page) []interactionCandidate {
	res, err := page.Evaluate(&rod.EvalOptions{
		ByValue:      true,
		AwaitPromise: true,
		JS: `
		() => {
			const out = [];
			const cssPath = (el) => {
				if (el.id) return '#' + CSS.escape(el.id);
				const parts = [];
				while (el && el.nodeType === 1 && parts.length < 4) {
					let part = el.tagName.toLowerCase();
					if (el.className && typeof el.className === 'string') {
						const cls = el.className.trim().split(/\s+/)[0];
						if (cls) part += '.' + CSS.escape(cls);
					}
					const parent = el.parentElement;
					if (parent) {
						const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
						if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
					}
					parts.unshift(part);
					el = parent;
				}
				return parts.join(' > ');
			};

			for (const el of document.querySelectorAll('nav a, [role="menubar"] [role="menuitem"], .dropdown, [aria-haspopup="true"]')) {
				out.push({ selector: cssPath(el), action: 'hover', text: (el.textContent || '').trim().slice(0, 80), inForm: !!el.closest('form') });
				if (out.length >= 6) break;
			}
			for (const el of document.querySelectorAll('input[type="text"], input[type="search"], input[type="email"]')) {
				out.push({ selector: cssPath(el), action: 'focus', text: el.placeholder || el.name || '', inForm: !!el.closest('form') });
				if (out.length >= 10) break;
			}
			for (const el of document.querySelectorAll('details > summary, [aria-expanded="false"], [data-toggle], .accordion button, [role="tab"]')) {
				out.push({ selector: cssPath(el), action: 'click', text: (el.textContent || '').trim().slice(0, 80), inForm: !!el.closest('form') });
				if (out.length >= 14) break;
			}
			return out;
		}`,
	})
	if err != nil || res == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var candidates []interactionCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil
	}
	return candidates
}

// isDestructive applies the deny-list to the candidate's text and
// selector, and blocks clicks inside forms entirely.
func isDestructive(c interactionCandidate) bool {
	if c.Action == "click" && c.InForm {
		return true
	}
	haystack := strings.ToLower(c.Text + " " + c.Selector)
	for _, kw := range destructiveKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func nodeCount(page *rod.Page) int {
	res, err := page.Eval(`() => document.querySelectorAll('*').length`)
	if err != nil {
		return -1
	}
	return res.Value.Int()
}
