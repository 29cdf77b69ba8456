package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webatlas/internal/config"
)

func newOpenAIAgainst(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewOpenAIClient("sk-test")
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c
}

func TestOpenAIChatParsesResponse(t *testing.T) {
	c := newOpenAIAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"  hello  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3}
		}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		ModelID:  "gpt-4o",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)
	assert.Equal(t, config.ProviderOpenAI, resp.Provider)
}

func TestOpenAIChatRateLimitCarriesRetryAfter(t *testing.T) {
	c := newOpenAIAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "11")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Chat(context.Background(), ChatRequest{ModelID: "gpt-4o"})
	require.Error(t, err)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrRateLimit, llmErr.Kind)
	assert.Equal(t, 11*time.Second, llmErr.RetryAfter)
	assert.True(t, llmErr.Transient())
}

func TestOpenAIChatServerError(t *testing.T) {
	c := newOpenAIAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	})

	_, err := c.Chat(context.Background(), ChatRequest{ModelID: "gpt-4o"})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrServer, llmErr.Kind)
	assert.True(t, llmErr.Transient())
}

func TestOpenAIChatAuthNotRetryable(t *testing.T) {
	c := newOpenAIAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Chat(context.Background(), ChatRequest{ModelID: "gpt-4o"})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrAuth, llmErr.Kind)
	assert.False(t, llmErr.Transient())
}

func TestAnthropicChatLiftsSystemMessage(t *testing.T) {
	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body anthropicRequest
		require.NoError(t, jsonDecode(r, &body))
		gotSystem = body.System
		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"done"}],
			"usage":{"input_tokens":5,"output_tokens":2}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-ant")
	c.baseURL = srv.URL
	c.httpClient = srv.Client()

	resp, err := c.Chat(context.Background(), ChatRequest{
		ModelID: "claude-3-5-haiku",
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "be terse", gotSystem)
	assert.Equal(t, "done", resp.Content)
}
