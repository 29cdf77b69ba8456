package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"webatlas/internal/config"
	"webatlas/internal/logging"
)

const (
	maxAttempts    = 5
	baseBackoff    = time.Second // 1s, 2s, 4s, 8s between the five attempts
	maxRetryAfter  = time.Minute
	defaultTimeout = 120 * time.Second
)

// Facade routes chat requests to the right provider by model id, retrying
// transient failures with exponential backoff. Escalation to the fallback
// model is deliberately NOT done here; that decision belongs to the
// analyzer.
type Facade struct {
	providers map[config.Provider]Provider
	breakers  map[config.Provider]*gobreaker.CircuitBreaker
	sleep     func(time.Duration) // test seam
}

// NewFacade builds a facade with one provider per configured API key.
func NewFacade(settings *config.Settings) *Facade {
	f := &Facade{
		providers: make(map[config.Provider]Provider),
		breakers:  make(map[config.Provider]*gobreaker.CircuitBreaker),
		sleep:     time.Sleep,
	}
	if settings.OpenAIKey != "" {
		f.register(NewOpenAIClient(settings.OpenAIKey))
	}
	if settings.AnthropicKey != "" {
		f.register(NewAnthropicClient(settings.AnthropicKey))
	}
	if settings.GeminiKey != "" {
		f.register(NewGeminiClient(settings.GeminiKey))
	}
	return f
}

// NewFacadeWithProviders wires explicit providers; tests use this.
func NewFacadeWithProviders(providers ...Provider) *Facade {
	f := &Facade{
		providers: make(map[config.Provider]Provider),
		breakers:  make(map[config.Provider]*gobreaker.CircuitBreaker),
		sleep:     time.Sleep,
	}
	for _, p := range providers {
		f.register(p)
	}
	return f
}

func (f *Facade) register(p Provider) {
	f.providers[p.Name()] = p
	f.breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(p.Name()),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
	})
}

// Chat resolves the request's model to a provider and calls it, retrying
// transient failures up to five attempts with 1s/2s/4s/8s backoff.
// Rate-limit errors honor any advertised retry-after. Returns either a
// full response or a typed LLMError.
func (f *Facade) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	log := logging.LLM()

	info, ok := config.LookupModel(req.ModelID)
	if !ok {
		return nil, &LLMError{ModelID: req.ModelID, Kind: ErrBadInput, Message: "unknown model identifier"}
	}
	provider, ok := f.providers[info.Provider]
	if !ok {
		return nil, &LLMError{Provider: info.Provider, ModelID: req.ModelID, Kind: ErrAuth,
			Message: "no API key configured for provider"}
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}

	breaker := f.breakers[info.Provider]
	var lastErr *LLMError

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			if lastErr != nil && lastErr.Kind == ErrRateLimit && lastErr.RetryAfter > 0 {
				delay = lastErr.RetryAfter
				if delay > maxRetryAfter {
					delay = maxRetryAfter
				}
			}
			log.Debug("retrying chat call",
				zap.String("model", req.ModelID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay))
			select {
			case <-ctx.Done():
				return nil, &LLMError{Provider: info.Provider, ModelID: req.ModelID, Kind: ErrTimeout, Message: ctx.Err().Error()}
			default:
			}
			f.sleep(delay)
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			return provider.Chat(ctx, req)
		})
		if err == nil {
			resp := result.(*ChatResponse)
			log.Debug("chat call succeeded",
				zap.String("model", req.ModelID),
				zap.Int("tokens_in", resp.TokensIn),
				zap.Int("tokens_out", resp.TokensOut))
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lastErr = &LLMError{Provider: info.Provider, ModelID: req.ModelID, Kind: ErrServer,
				Message: "provider circuit open"}
			continue
		}

		var llmErr *LLMError
		if !errors.As(err, &llmErr) {
			llmErr = &LLMError{Provider: info.Provider, ModelID: req.ModelID, Kind: ErrServer, Message: err.Error()}
		}
		if !llmErr.Transient() {
			return nil, llmErr
		}
		lastErr = llmErr
		log.Warn("transient chat failure",
			zap.String("model", req.ModelID),
			zap.String("kind", string(llmErr.Kind)),
			zap.Int("attempt", attempt+1))
	}

	return nil, &LLMError{
		Provider:   lastErr.Provider,
		ModelID:    req.ModelID,
		Kind:       ErrExhausted,
		Status:     lastErr.Status,
		Message:    "retries exhausted: " + lastErr.Message,
	}
}

// Available reports whether a provider is registered.
func (f *Facade) Available(p config.Provider) bool {
	_, ok := f.providers[p]
	return ok
}
