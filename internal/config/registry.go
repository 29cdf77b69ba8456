package config

import "fmt"

// Provider tags the upstream chat API a model belongs to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Role names a logical model slot resolved through the registry.
type Role string

const (
	RoleStep1    Role = "STEP1_MODEL"
	RoleStep2    Role = "STEP2_MODEL"
	RoleFallback Role = "FALLBACK_MODEL"
)

// ModelInfo describes a registered model: owning provider plus the token
// cost table used for pre-run estimates.
type ModelInfo struct {
	ID            string
	Provider      Provider
	InputPerMTok  float64 // USD per million input tokens
	OutputPerMTok float64 // USD per million output tokens
	MaxOutput     int
}

// modelRegistry is the static model table. Resolution is a lookup, never
// a guess: unknown identifiers fail with the identifier echoed.
var modelRegistry = map[string]ModelInfo{
	// OpenAI
	"gpt-4o":      {ID: "gpt-4o", Provider: ProviderOpenAI, InputPerMTok: 2.50, OutputPerMTok: 10.00, MaxOutput: 16384},
	"gpt-4o-mini": {ID: "gpt-4o-mini", Provider: ProviderOpenAI, InputPerMTok: 0.15, OutputPerMTok: 0.60, MaxOutput: 16384},
	"gpt-4-turbo": {ID: "gpt-4-turbo", Provider: ProviderOpenAI, InputPerMTok: 10.00, OutputPerMTok: 30.00, MaxOutput: 4096},
	"gpt-4.1":     {ID: "gpt-4.1", Provider: ProviderOpenAI, InputPerMTok: 2.00, OutputPerMTok: 8.00, MaxOutput: 32768},
	"gpt-4.1-mini": {ID: "gpt-4.1-mini", Provider: ProviderOpenAI, InputPerMTok: 0.40, OutputPerMTok: 1.60, MaxOutput: 32768},

	// Anthropic
	"claude-sonnet-4-5": {ID: "claude-sonnet-4-5", Provider: ProviderAnthropic, InputPerMTok: 3.00, OutputPerMTok: 15.00, MaxOutput: 8192},
	"claude-haiku-4-5":  {ID: "claude-haiku-4-5", Provider: ProviderAnthropic, InputPerMTok: 0.80, OutputPerMTok: 4.00, MaxOutput: 8192},
	"claude-3-5-sonnet": {ID: "claude-3-5-sonnet", Provider: ProviderAnthropic, InputPerMTok: 3.00, OutputPerMTok: 15.00, MaxOutput: 8192},
	"claude-3-5-haiku":  {ID: "claude-3-5-haiku", Provider: ProviderAnthropic, InputPerMTok: 0.80, OutputPerMTok: 4.00, MaxOutput: 8192},

	// Gemini
	"gemini-2.0-flash":     {ID: "gemini-2.0-flash", Provider: ProviderGemini, InputPerMTok: 0.10, OutputPerMTok: 0.40, MaxOutput: 8192},
	"gemini-2.5-flash":     {ID: "gemini-2.5-flash", Provider: ProviderGemini, InputPerMTok: 0.30, OutputPerMTok: 2.50, MaxOutput: 65536},
	"gemini-2.5-pro":       {ID: "gemini-2.5-pro", Provider: ProviderGemini, InputPerMTok: 1.25, OutputPerMTok: 10.00, MaxOutput: 65536},
	"gemini-1.5-pro":       {ID: "gemini-1.5-pro", Provider: ProviderGemini, InputPerMTok: 1.25, OutputPerMTok: 5.00, MaxOutput: 8192},
	"gemini-3-flash-preview": {ID: "gemini-3-flash-preview", Provider: ProviderGemini, InputPerMTok: 0.30, OutputPerMTok: 2.50, MaxOutput: 65536},
}

// LookupModel returns registry info for a model identifier.
func LookupModel(id string) (ModelInfo, bool) {
	info, ok := modelRegistry[id]
	return info, ok
}

// Resolve maps a role to its configured (provider, model) pair.
func (s *Settings) Resolve(role Role) (ModelInfo, error) {
	var id string
	switch role {
	case RoleStep1:
		id = s.Step1Model
	case RoleStep2:
		id = s.Step2Model
	case RoleFallback:
		id = s.FallbackModel
	default:
		return ModelInfo{}, fmt.Errorf("unknown model role %q", role)
	}
	info, ok := LookupModel(id)
	if !ok {
		return ModelInfo{}, &ConfigError{Var: string(role), Reason: fmt.Sprintf("unknown model identifier %q", id)}
	}
	return info, nil
}

// ChatModelFor returns the provider-scoped default chat model.
func (s *Settings) ChatModelFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return s.OpenAIChatModel
	case ProviderAnthropic:
		return s.AnthropicChatModel
	case ProviderGemini:
		return s.GeminiChatModel
	}
	return ""
}

// KeyFor returns the API key configured for a provider.
func (s *Settings) KeyFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return s.OpenAIKey
	case ProviderAnthropic:
		return s.AnthropicKey
	case ProviderGemini:
		return s.GeminiKey
	}
	return ""
}
