package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultMinQuality is the passing floor for the blended quality score.
const DefaultMinQuality = 0.5

// Quality weight blend: completeness / specificity / technical depth.
const (
	weightCompleteness = 0.40
	weightSpecificity  = 0.35
	weightDepth        = 0.25
)

// boilerplatePhrases penalize generic filler in free-text fields.
var boilerplatePhrases = []string{
	"as an ai", "it depends", "various features", "this page contains",
	"a wide range of", "lorem ipsum", "placeholder", "generic page",
	"not enough information", "unable to determine",
}

// technicalTerms count toward the depth score alongside concrete
// identifiers (selectors, endpoints, methods).
var technicalTerms = []string{
	"api", "endpoint", "form", "selector", "json", "http", "post", "get",
	"validation", "session", "auth", "query", "database", "cache", "rest",
	"graphql", "websocket", "oauth", "token", "webhook", "pagination",
}

// ExtractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON object.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return strings.TrimSpace(s[start : end+1]), nil
}

// ValidateSummary parses, schema-checks, clips, and quality-scores a
// step-1 response.
func ValidateSummary(raw string, minQuality float64) (*ContentSummary, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return nil, &QualityError{Step: 1, Reason: "parse: " + err.Error()}
	}
	if err := checkSchema(contentSummarySchema, doc); err != nil {
		return nil, &QualityError{Step: 1, Reason: "schema: " + err.Error()}
	}

	var s ContentSummary
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return nil, &QualityError{Step: 1, Reason: "decode: " + err.Error()}
	}
	s.BusinessImportance = clip01(s.BusinessImportance)
	s.Confidence = clip01(s.Confidence)

	s.Quality = scoreSummary(&s)
	if s.Quality.Overall < minQuality {
		return nil, &QualityError{Step: 1, Reason: "quality below threshold", Quality: s.Quality.Overall}
	}
	return &s, nil
}

// ValidateFeatures parses, schema-checks, clips, and quality-scores a
// step-2 response.
func ValidateFeatures(raw string, minQuality float64) (*FeatureAnalysis, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return nil, &QualityError{Step: 2, Reason: "parse: " + err.Error()}
	}
	if err := checkSchema(featureAnalysisSchema, doc); err != nil {
		return nil, &QualityError{Step: 2, Reason: "schema: " + err.Error()}
	}

	var f FeatureAnalysis
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return nil, &QualityError{Step: 2, Reason: "decode: " + err.Error()}
	}
	f.OverallConfidence = clip01(f.OverallConfidence)

	quality := scoreFeatures(&f)
	f.QualityScore = quality.Overall
	if quality.Overall < minQuality {
		return nil, &QualityError{Step: 2, Reason: "quality below threshold", Quality: quality.Overall}
	}
	return &f, nil
}

func checkSchema(schema, doc string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoreSummary blends completeness, specificity, and depth for a summary.
func scoreSummary(s *ContentSummary) QualityBreakdown {
	optional := 0.0
	if len(s.Workflows) > 0 {
		optional++
	}
	if len(s.Keywords) > 0 {
		optional++
	}
	if s.UserContext != "" {
		optional++
	}
	if s.BusinessLogic != "" {
		optional++
	}
	if s.NavigationRole != "" {
		optional++
	}
	completeness := optional / 5

	specificity := specificityScore([]string{s.Purpose, s.UserContext, s.BusinessLogic, s.NavigationRole})
	depth := depthScore(strings.Join(append([]string{s.Purpose, s.BusinessLogic}, s.Workflows...), " "), 4)

	return blend(completeness, specificity, depth)
}

// scoreFeatures blends the same three axes for a feature analysis.
func scoreFeatures(f *FeatureAnalysis) QualityBreakdown {
	optional := 0.0
	if len(f.InteractiveElements) > 0 {
		optional++
	}
	if len(f.FunctionalCapabilities) > 0 {
		optional++
	}
	if len(f.APIIntegrations) > 0 {
		optional++
	}
	if len(f.BusinessRules) > 0 {
		optional++
	}
	if len(f.RebuildSpecs) > 0 {
		optional++
	}
	completeness := optional / 5

	var texts []string
	for _, r := range f.RebuildSpecs {
		texts = append(texts, r.Description)
	}
	texts = append(texts, f.FunctionalCapabilities...)
	texts = append(texts, f.BusinessRules...)
	specificity := specificityScore(texts)

	// Each interactive element and API integration adds 0.1 to depth on
	// top of the term-based score.
	var depthText strings.Builder
	for _, el := range f.InteractiveElements {
		depthText.WriteString(el.Selector + " " + el.Purpose + " ")
	}
	for _, api := range f.APIIntegrations {
		depthText.WriteString(api.Method + " " + api.Endpoint + " ")
	}
	for _, r := range f.RebuildSpecs {
		depthText.WriteString(r.Description + " ")
	}
	depth := depthScore(depthText.String(), 6)
	depth = clip01(depth + 0.1*float64(len(f.InteractiveElements)+len(f.APIIntegrations)))

	return blend(completeness, specificity, depth)
}

const minFreeTextLen = 40

// specificityScore averages free-text length against a floor and applies
// the boilerplate penalty.
func specificityScore(texts []string) float64 {
	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		return 0
	}

	total := 0.0
	for _, t := range nonEmpty {
		ratio := float64(len(t)) / minFreeTextLen
		if ratio > 1 {
			ratio = 1
		}
		lower := strings.ToLower(t)
		for _, phrase := range boilerplatePhrases {
			if strings.Contains(lower, phrase) {
				ratio -= 0.5
				break
			}
		}
		if ratio < 0 {
			ratio = 0
		}
		total += ratio
	}
	return total / float64(len(nonEmpty))
}

// depthScore counts technical terms against a minimum expectation.
func depthScore(text string, minTerms int) float64 {
	lower := strings.ToLower(text)
	count := 0
	for _, term := range technicalTerms {
		count += strings.Count(lower, term)
	}
	score := float64(count) / float64(minTerms)
	return clip01(score)
}

func blend(completeness, specificity, depth float64) QualityBreakdown {
	return QualityBreakdown{
		Overall:      clip01(weightCompleteness*completeness + weightSpecificity*specificity + weightDepth*depth),
		Completeness: clip01(completeness),
		Specificity:  clip01(specificity),
		Depth:        clip01(depth),
	}
}
