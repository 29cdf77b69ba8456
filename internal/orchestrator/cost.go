package orchestrator

import (
	"fmt"
	"strings"

	"webatlas/internal/config"
)

// Per-page token heuristics for the pre-run estimate. Step 2 prompts are
// larger because they embed the step-1 summary and network evidence.
const (
	step1TokensIn  = 3500
	step1TokensOut = 700
	step2TokensIn  = 4800
	step2TokensOut = 1100
)

// CostEstimate is the pre-run spend projection.
type CostEstimate struct {
	Pages        int          `json:"pages"`
	IncludeStep2 bool         `json:"include_step2"`
	Step1Model   string       `json:"step1_model"`
	Step2Model   string       `json:"step2_model"`
	TokensIn     int          `json:"tokens_in"`
	TokensOut    int          `json:"tokens_out"`
	USD          float64      `json:"usd"`
	Priority     CostPriority `json:"cost_priority"`
}

// estimateCost projects token usage and spend for a page selection.
func estimateCost(settings *config.Settings, pages int, includeStep2 bool, priority CostPriority) (*CostEstimate, error) {
	step1, err := settings.Resolve(config.RoleStep1)
	if err != nil {
		return nil, err
	}
	step2, err := settings.Resolve(config.RoleStep2)
	if err != nil {
		return nil, err
	}

	est := &CostEstimate{
		Pages:        pages,
		IncludeStep2: includeStep2,
		Step1Model:   step1.ID,
		Step2Model:   step2.ID,
		Priority:     priority,
	}

	est.TokensIn = pages * step1TokensIn
	est.TokensOut = pages * step1TokensOut
	est.USD = float64(pages) * (step1TokensIn*step1.InputPerMTok + step1TokensOut*step1.OutputPerMTok) / 1e6

	if includeStep2 {
		est.TokensIn += pages * step2TokensIn
		est.TokensOut += pages * step2TokensOut
		est.USD += float64(pages) * (step2TokensIn*step2.InputPerMTok + step2TokensOut*step2.OutputPerMTok) / 1e6
	}
	return est, nil
}

// renderCostEstimate formats the estimate as the reports/cost-estimate.md
// artifact.
func renderCostEstimate(est *CostEstimate) string {
	var b strings.Builder
	b.WriteString("# Cost Estimate\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Pages | %d |\n", est.Pages)
	fmt.Fprintf(&b, "| Step 2 enabled | %v |\n", est.IncludeStep2)
	fmt.Fprintf(&b, "| Step 1 model | %s |\n", est.Step1Model)
	fmt.Fprintf(&b, "| Step 2 model | %s |\n", est.Step2Model)
	fmt.Fprintf(&b, "| Cost priority | %s |\n", est.Priority)
	fmt.Fprintf(&b, "| Estimated input tokens | %d |\n", est.TokensIn)
	fmt.Fprintf(&b, "| Estimated output tokens | %d |\n", est.TokensOut)
	fmt.Fprintf(&b, "| Estimated cost (USD) | $%.4f |\n", est.USD)
	return b.String()
}
