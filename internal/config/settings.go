// Package config holds the immutable runtime settings and the model
// registry. Settings are resolved once at startup from the environment
// (optionally pre-seeded by a webatlas.yaml project file); they are never
// mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigError is fatal at startup and names the offending variable.
type ConfigError struct {
	Var    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Var, e.Reason)
}

// Settings is the single immutable settings record for a run.
type Settings struct {
	// Model roles (required).
	Step1Model    string `validate:"required"`
	Step2Model    string `validate:"required"`
	FallbackModel string `validate:"required"`

	// Provider API keys. At least one must be present.
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string

	// Per-provider chat models, required for each provider whose key is set.
	OpenAIChatModel    string
	AnthropicChatModel string
	GeminiChatModel    string

	// Optional knobs.
	OutputRoot         string `validate:"required"`
	DiscoveryTimeout   time.Duration
	DiscoveryMaxDepth  int `validate:"min=1,max=10"`
	MaxConcurrentPages int `validate:"min=1,max=5"`
	Headless           bool
	Debug              bool
}

// fileSettings is the optional webatlas.yaml shape. Only non-secret
// defaults live here; environment variables always win.
type fileSettings struct {
	OutputRoot         string `yaml:"output_root"`
	DiscoveryTimeout   string `yaml:"discovery_timeout"`
	DiscoveryMaxDepth  int    `yaml:"discovery_max_depth"`
	MaxConcurrentPages int    `yaml:"max_concurrent_pages"`
	Headless           *bool  `yaml:"headless"`
}

const (
	defaultDiscoveryTimeout  = 30 * time.Second
	defaultDiscoveryMaxDepth = 3
	defaultConcurrentPages   = 3
	maxConcurrentPagesCap    = 5
)

// Load resolves settings from webatlas.yaml (if present in dir) and the
// environment, then validates. Fails fast with a ConfigError naming the
// missing or invalid variable.
func Load(dir string) (*Settings, error) {
	s := &Settings{
		OutputRoot:         ".",
		DiscoveryTimeout:   defaultDiscoveryTimeout,
		DiscoveryMaxDepth:  defaultDiscoveryMaxDepth,
		MaxConcurrentPages: defaultConcurrentPages,
		Headless:           true,
	}

	if dir != "" {
		if err := applyFile(s, filepath.Join(dir, "webatlas.yaml")); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(s); err != nil {
		return nil, err
	}

	if s.MaxConcurrentPages > maxConcurrentPagesCap {
		s.MaxConcurrentPages = maxConcurrentPagesCap
	}

	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

func applyFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ConfigError{Var: path, Reason: err.Error()}
	}
	var f fileSettings
	if err := yaml.Unmarshal(data, &f); err != nil {
		return &ConfigError{Var: path, Reason: "invalid yaml: " + err.Error()}
	}
	if f.OutputRoot != "" {
		s.OutputRoot = f.OutputRoot
	}
	if f.DiscoveryTimeout != "" {
		d, err := time.ParseDuration(f.DiscoveryTimeout)
		if err != nil {
			return &ConfigError{Var: "discovery_timeout", Reason: err.Error()}
		}
		s.DiscoveryTimeout = d
	}
	if f.DiscoveryMaxDepth > 0 {
		s.DiscoveryMaxDepth = f.DiscoveryMaxDepth
	}
	if f.MaxConcurrentPages > 0 {
		s.MaxConcurrentPages = f.MaxConcurrentPages
	}
	if f.Headless != nil {
		s.Headless = *f.Headless
	}
	return nil
}

func applyEnv(s *Settings) error {
	s.Step1Model = os.Getenv("STEP1_MODEL")
	s.Step2Model = os.Getenv("STEP2_MODEL")
	s.FallbackModel = os.Getenv("FALLBACK_MODEL")

	s.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	s.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	s.GeminiKey = os.Getenv("GEMINI_API_KEY")

	s.OpenAIChatModel = os.Getenv("OPENAI_CHAT_MODEL")
	s.AnthropicChatModel = os.Getenv("ANTHROPIC_CHAT_MODEL")
	s.GeminiChatModel = os.Getenv("GEMINI_CHAT_MODEL")

	if v := os.Getenv("OUTPUT_ROOT"); v != "" {
		s.OutputRoot = v
	}
	if v := os.Getenv("DISCOVERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Bare integers are treated as seconds.
			secs, ierr := strconv.Atoi(v)
			if ierr != nil {
				return &ConfigError{Var: "DISCOVERY_TIMEOUT", Reason: "not a duration: " + v}
			}
			d = time.Duration(secs) * time.Second
		}
		s.DiscoveryTimeout = d
	}
	if v := os.Getenv("DISCOVERY_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Var: "DISCOVERY_MAX_DEPTH", Reason: "not an integer: " + v}
		}
		s.DiscoveryMaxDepth = n
	}
	if v := os.Getenv("MAX_CONCURRENT_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Var: "MAX_CONCURRENT_PAGES", Reason: "not an integer: " + v}
		}
		s.MaxConcurrentPages = n
	}
	if v := os.Getenv("PLAYWRIGHT_HEADLESS"); v != "" {
		s.Headless = v != "0" && v != "false"
	}
	s.Debug = os.Getenv("WEBATLAS_DEBUG") == "1"
	return nil
}

// check enforces the required-variable contract from the spec: the three
// role models, at least one provider key, and a chat model for every
// provider whose key is supplied.
func (s *Settings) check() error {
	required := []struct{ name, val string }{
		{"STEP1_MODEL", s.Step1Model},
		{"STEP2_MODEL", s.Step2Model},
		{"FALLBACK_MODEL", s.FallbackModel},
	}
	for _, r := range required {
		if r.val == "" {
			return &ConfigError{Var: r.name, Reason: "required but not set"}
		}
	}

	if s.OpenAIKey == "" && s.AnthropicKey == "" && s.GeminiKey == "" {
		return &ConfigError{
			Var:    "OPENAI_API_KEY|ANTHROPIC_API_KEY|GEMINI_API_KEY",
			Reason: "at least one provider API key is required",
		}
	}
	if s.OpenAIKey != "" && s.OpenAIChatModel == "" {
		return &ConfigError{Var: "OPENAI_CHAT_MODEL", Reason: "required when OPENAI_API_KEY is set"}
	}
	if s.AnthropicKey != "" && s.AnthropicChatModel == "" {
		return &ConfigError{Var: "ANTHROPIC_CHAT_MODEL", Reason: "required when ANTHROPIC_API_KEY is set"}
	}
	if s.GeminiKey != "" && s.GeminiChatModel == "" {
		return &ConfigError{Var: "GEMINI_CHAT_MODEL", Reason: "required when GEMINI_API_KEY is set"}
	}

	// Role models must resolve in the registry, and their provider must
	// have a key configured.
	for _, role := range []struct{ name, id string }{
		{"STEP1_MODEL", s.Step1Model},
		{"STEP2_MODEL", s.Step2Model},
		{"FALLBACK_MODEL", s.FallbackModel},
	} {
		info, ok := LookupModel(role.id)
		if !ok {
			return &ConfigError{Var: role.name, Reason: fmt.Sprintf("unknown model identifier %q", role.id)}
		}
		if !s.hasKeyFor(info.Provider) {
			return &ConfigError{
				Var:    role.name,
				Reason: fmt.Sprintf("model %q requires a %s API key", role.id, info.Provider),
			}
		}
	}

	if s.DiscoveryTimeout <= 0 {
		return &ConfigError{Var: "DISCOVERY_TIMEOUT", Reason: "must be positive"}
	}
	if err := validator.New().Struct(s); err != nil {
		return &ConfigError{Var: "settings", Reason: err.Error()}
	}
	return nil
}

func (s *Settings) hasKeyFor(p Provider) bool {
	switch p {
	case ProviderOpenAI:
		return s.OpenAIKey != ""
	case ProviderAnthropic:
		return s.AnthropicKey != ""
	case ProviderGemini:
		return s.GeminiKey != ""
	}
	return false
}

// LogDir returns the debug log directory under the output root.
func (s *Settings) LogDir() string {
	return filepath.Join(s.OutputRoot, ".webatlas", "logs")
}
