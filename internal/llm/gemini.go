package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"webatlas/internal/config"
)

// GeminiClient talks to the Gemini API through the official genai SDK.
type GeminiClient struct {
	apiKey string
	client *genai.Client
}

// NewGeminiClient creates a Gemini-backed provider. The SDK client is
// constructed lazily on first call so a configured-but-unused provider
// costs nothing at startup.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey}
}

// Name returns the provider tag.
func (c *GeminiClient) Name() config.Provider { return config.ProviderGemini }

func (c *GeminiClient) ensureClient(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return &LLMError{Provider: c.Name(), Kind: ErrAuth, Message: "create genai client: " + err.Error()}
	}
	c.client = client
	return nil
}

// Chat performs a single GenerateContent call. System messages become the
// system instruction; the remaining turns map onto genai contents.
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrAuth, Message: "API key not configured"}
	}
	if err := c.ensureClient(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	temp := float32(req.Temperature)
	cfg.Temperature = &temp

	start := time.Now()
	result, err := c.client.Models.GenerateContent(callCtx, req.ModelID, contents, cfg)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrTimeout,
				Message: "generate content timed out after " + time.Since(start).Truncate(time.Millisecond).String()}
		}
		return nil, classifyGenAIError(req.ModelID, err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrServer, Message: "no completion returned"}
	}

	resp := &ChatResponse{
		Content:  text,
		ModelID:  req.ModelID,
		Provider: c.Name(),
	}
	if result.UsageMetadata != nil {
		resp.TokensIn = int(result.UsageMetadata.PromptTokenCount)
		resp.TokensOut = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// classifyGenAIError maps SDK errors onto the taxonomy via the embedded
// HTTP status when one is present.
func classifyGenAIError(model string, err error) *LLMError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &LLMError{Provider: config.ProviderGemini, ModelID: model, Kind: ErrRateLimit, Status: apiErr.Code, Message: apiErr.Message}
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &LLMError{Provider: config.ProviderGemini, ModelID: model, Kind: ErrAuth, Status: apiErr.Code, Message: apiErr.Message}
		case apiErr.Code >= 500:
			return &LLMError{Provider: config.ProviderGemini, ModelID: model, Kind: ErrServer, Status: apiErr.Code, Message: apiErr.Message}
		case apiErr.Code >= 400:
			return &LLMError{Provider: config.ProviderGemini, ModelID: model, Kind: ErrBadInput, Status: apiErr.Code, Message: apiErr.Message}
		}
	}
	return &LLMError{Provider: config.ProviderGemini, ModelID: model, Kind: ErrServer, Message: err.Error()}
}
