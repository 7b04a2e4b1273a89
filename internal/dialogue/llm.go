package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

const (
	defaultBaseURL = "https://api.together.xyz/v1"
	defaultModel   = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

const systemPrompt = `You are a friendly shopping assistant for an online store.
Rewrite the draft message below in a warm, natural tone in at most three sentences.
Keep every price exactly as written, including the dollar sign and cents.
Do not invent discounts, products or features.`

// LLMConfig configures the OpenAI-compatible chat backend.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestsPerSec float64
	MaxRetries     int
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// LLMRenderer rephrases template drafts through a chat completion API.
// Any failure falls back to the template draft.
type LLMRenderer struct {
	client   *openai.Client
	limiter  *rate.Limiter
	fallback *TemplateRenderer
	logger   *observability.Logger
	cfg      LLMConfig
}

// NewLLMRenderer creates a renderer backed by an OpenAI-compatible API.
func NewLLMRenderer(cfg LLMConfig, logger *observability.Logger) *LLMRenderer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = maxBackoff
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	burst := int(math.Ceil(cfg.RequestsPerSec))
	return &LLMRenderer{
		client:   openai.NewClientWithConfig(clientCfg),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst),
		fallback: NewTemplateRenderer(),
		logger:   logger,
		cfg:      cfg,
	}
}

// RenderDecision rephrases the template wording of a decision.
func (r *LLMRenderer) RenderDecision(ctx context.Context, in DecisionInput) (string, error) {
	draft, err := r.fallback.RenderDecision(ctx, in)
	if err != nil {
		return "", err
	}
	return r.rephrase(ctx, "decision", draft, money(in.Decision.Amount)), nil
}

// RenderRecommendations rephrases the template wording of a ranked list.
func (r *LLMRenderer) RenderRecommendations(ctx context.Context, in RecommendationInput) (string, error) {
	draft, err := r.fallback.RenderRecommendations(ctx, in)
	if err != nil {
		return "", err
	}
	if len(in.Results) == 0 {
		return draft, nil
	}
	return r.rephrase(ctx, "recommendations", draft, money(in.Results[0].Product.ListPrice)), nil
}

// rephrase returns the model's rewrite of draft, or draft itself when the
// call fails or the rewrite drops the required amount.
func (r *LLMRenderer) rephrase(ctx context.Context, kind, draft, mustContain string) string {
	start := time.Now()
	text, err := r.complete(ctx, draft)
	if err != nil {
		r.logger.WithContext(ctx).Warn().
			Err(err).
			Str("kind", kind).
			Msg("LLM rendering failed, using template")
		return draft
	}
	if mustContain != "" && !strings.Contains(text, mustContain) {
		r.logger.WithContext(ctx).Warn().
			Str("kind", kind).
			Str("amount", mustContain).
			Msg("LLM rewrite changed the price, using template")
		return draft
	}
	r.logger.WithContext(ctx).Debug().
		Str("kind", kind).
		Dur("duration", time.Since(start)).
		Msg("LLM rendering complete")
	return text
}

func (r *LLMRenderer) complete(ctx context.Context, draft string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: draft},
		},
		Temperature: 0.3,
		MaxTokens:   200,
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := r.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) > 0 {
				if text := strings.TrimSpace(resp.Choices[0].Message.Content); text != "" {
					return text, nil
				}
			}
			err = errors.New("empty completion")
		}
		lastErr = err

		if !retryable(err) || attempt == r.cfg.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, r.cfg.InitialBackoff, r.cfg.MaxBackoff)
		r.logger.WithContext(ctx).Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Chat completion failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return shouldRetry(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return shouldRetry(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff doubles the initial backoff per attempt, capped at ceiling.
func calculateBackoff(attempt int, initial, ceiling time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(ceiling) {
		backoff = float64(ceiling)
	}
	return time.Duration(backoff)
}

// New creates the renderer for a provider name ("template" or "llm").
func New(provider string, cfg LLMConfig, logger *observability.Logger) (Renderer, error) {
	switch provider {
	case "", "template":
		return NewTemplateRenderer(), nil
	case "llm":
		if cfg.APIKey == "" {
			return nil, errors.New("llm renderer requires an api key")
		}
		return NewLLMRenderer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown dialogue provider: %s", provider)
	}
}
