package analysis

import (
	"fmt"
	"strings"

	"webatlas/internal/browser"
)

const maxVisibleTextChars = 8000

const step1System = `You analyze legacy web pages so they can be rebuilt with modern tooling.
Given a page capture, summarize what the page is for, who uses it, and the
business logic it implements. Respond with a single JSON object and nothing
else. Be concrete: name the workflows you can see evidence for, estimate
business importance and your own confidence as numbers between 0 and 1, and
classify where the page sits in the user journey.`

const step2System = `You extract the functional surface of a legacy web page so it can be
rebuilt feature-for-feature. You are given the page capture, observed API
traffic, and a content summary produced by an earlier analysis pass. Ground
every finding in that evidence. Respond with a single JSON object and
nothing else. Selectors must be real CSS selectors from the page; endpoints
must come from the observed traffic or visible form actions.`

// BuildStep1Prompt renders the content-summarization prompt from a
// snapshot.
func BuildStep1Prompt(snap *browser.PageSnapshot) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", snap.URL)
	if snap.FinalURL != "" && snap.FinalURL != snap.URL {
		fmt.Fprintf(&b, "Final URL (after redirects): %s\n", snap.FinalURL)
	}
	fmt.Fprintf(&b, "Title: %s\n", snap.Title)
	if desc := snap.Meta["description"]; desc != "" {
		fmt.Fprintf(&b, "Meta description: %s\n", desc)
	}
	if snap.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", snap.Language)
	}
	if len(snap.TechSignals) > 0 {
		fmt.Fprintf(&b, "Technology signals: %s\n", strings.Join(snap.TechSignals, ", "))
	}
	fmt.Fprintf(&b, "DOM: %d nodes, %d links, %d forms, %d inputs, %d buttons, %d tables\n",
		snap.DOMStats.Nodes, snap.DOMStats.Links, snap.DOMStats.Forms,
		snap.DOMStats.Inputs, snap.DOMStats.Buttons, snap.DOMStats.Tables)

	text := snap.VisibleText
	if len(text) > maxVisibleTextChars {
		text = text[:maxVisibleTextChars] + "\n[truncated]"
	}
	fmt.Fprintf(&b, "\nVisible page text:\n%s\n", text)

	fmt.Fprintf(&b, "\nRespond with JSON matching this schema:\n%s\n", contentSummarySchema)
	return step1System, b.String()
}

// BuildStep2Prompt renders the feature-analysis prompt. The full content
// summary, including business importance and journey stage, is embedded as
// the context block; the model must echo the summary id as context_ref.
func BuildStep2Prompt(snap *browser.PageSnapshot, summary *ContentSummary) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", snap.URL, snap.Title)

	b.WriteString("\n--- Content summary from the earlier analysis pass ---\n")
	fmt.Fprintf(&b, "Summary id: %s\n", summary.ID)
	fmt.Fprintf(&b, "Purpose: %s\n", summary.Purpose)
	fmt.Fprintf(&b, "User context: %s\n", summary.UserContext)
	fmt.Fprintf(&b, "Business logic: %s\n", summary.BusinessLogic)
	fmt.Fprintf(&b, "Navigation role: %s\n", summary.NavigationRole)
	fmt.Fprintf(&b, "Business importance: %.2f\n", summary.BusinessImportance)
	fmt.Fprintf(&b, "Journey stage: %s\n", summary.JourneyStage)
	if len(summary.Workflows) > 0 {
		fmt.Fprintf(&b, "Workflows: %s\n", strings.Join(summary.Workflows, "; "))
	}
	b.WriteString("--- End content summary ---\n")

	if len(snap.Network.APIEndpoints) > 0 {
		b.WriteString("\nObserved API traffic:\n")
		for _, ep := range snap.Network.APIEndpoints {
			fmt.Fprintf(&b, "  %s %s (%s, %d requests)\n", ep.Method, ep.Endpoint, ep.ContentType, ep.Count)
		}
	}
	if len(snap.InteractionLog) > 0 {
		b.WriteString("\nObserved interactions:\n")
		for _, step := range snap.InteractionLog {
			fmt.Fprintf(&b, "  %s %s -> %s (dom_changed=%v)\n", step.Action, step.Selector, step.Outcome, step.DOMChanged)
		}
	}
	fmt.Fprintf(&b, "\nDOM: %d forms, %d inputs, %d buttons, %d links\n",
		snap.DOMStats.Forms, snap.DOMStats.Inputs, snap.DOMStats.Buttons, snap.DOMStats.Links)

	text := snap.VisibleText
	if len(text) > maxVisibleTextChars {
		text = text[:maxVisibleTextChars] + "\n[truncated]"
	}
	fmt.Fprintf(&b, "\nVisible page text:\n%s\n", text)

	fmt.Fprintf(&b, "\nSet context_ref to %q.\n", summary.ID)
	fmt.Fprintf(&b, "Respond with JSON matching this schema:\n%s\n", featureAnalysisSchema)
	return step2System, b.String()
}

// HardenPrompt appends an explicit schema restatement after a schema or
// quality failure; the retry uses the same model with this suffix.
func HardenPrompt(user, schema, failure string) string {
	var b strings.Builder
	b.WriteString(user)
	b.WriteString("\n\nIMPORTANT: your previous response was rejected: ")
	b.WriteString(failure)
	b.WriteString("\nReturn ONLY a JSON object, no prose, no markdown fences. ")
	b.WriteString("It must validate against this schema exactly:\n")
	b.WriteString(schema)
	return b.String()
}
