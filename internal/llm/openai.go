package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webatlas/internal/config"
)

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient creates an OpenAI-backed provider.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Name returns the provider tag.
func (c *OpenAIClient) Name() config.Provider { return config.ProviderOpenAI }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Chat performs a single chat completion call. Retrying is the facade's
// job; this method classifies failures and returns.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrAuth, Message: "API key not configured"}
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	body := openAIRequest{
		Model:       req.ModelID,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrBadInput, Message: err.Error()}
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrBadInput, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(c.Name(), req.ModelID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrServer, Message: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(c.Name(), req.ModelID, resp.StatusCode, resp.Header, raw)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrServer, Message: "parse response: " + err.Error()}
	}
	if parsed.Error != nil {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrServer, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &LLMError{Provider: c.Name(), ModelID: req.ModelID, Kind: ErrServer, Message: "no completion returned"}
	}

	return &ChatResponse{
		Content:   strings.TrimSpace(parsed.Choices[0].Message.Content),
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
		ModelID:   req.ModelID,
		Provider:  c.Name(),
	}, nil
}

// classifyTransportError maps net-level failures onto the error taxonomy.
func classifyTransportError(p config.Provider, model string, err error) *LLMError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Provider: p, ModelID: model, Kind: ErrTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &LLMError{Provider: p, ModelID: model, Kind: ErrBadInput, Message: "canceled"}
	}
	// Treat unknown transport failures as retryable server trouble.
	return &LLMError{Provider: p, ModelID: model, Kind: ErrServer, Message: err.Error()}
}

// classifyHTTPStatus maps a non-200 status onto the taxonomy, honoring
// any advertised Retry-After on 429s.
func classifyHTTPStatus(p config.Provider, model string, status int, header http.Header, body []byte) *LLMError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusTooManyRequests:
		var after time.Duration
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				after = time.Duration(secs) * time.Second
			}
		}
		return &LLMError{Provider: p, ModelID: model, Kind: ErrRateLimit, Status: status, RetryAfter: after, Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &LLMError{Provider: p, ModelID: model, Kind: ErrAuth, Status: status, Message: msg}
	case status >= 500:
		return &LLMError{Provider: p, ModelID: model, Kind: ErrServer, Status: status, Message: msg}
	default:
		return &LLMError{Provider: p, ModelID: model, Kind: ErrBadInput, Status: status,
			Message: fmt.Sprintf("request rejected: %s", msg)}
	}
}
