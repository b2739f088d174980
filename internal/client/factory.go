package client

import (
	"context"
	"fmt"

	"adorable/internal/config"
	"adorable/internal/logging"
	"adorable/internal/ratelimit"
)

// New creates the gateway for the configured provider. When a request
// budget is configured the gateway waits for a slot before each call.
func New(ctx context.Context, cfg *config.Config) (Gateway, error) {
	logging.Debug("creating gateway",
		"provider", cfg.API.Provider,
		"model", cfg.Model.Name)

	var (
		gw  Gateway
		err error
	)
	switch cfg.API.Provider {
	case "", "openrouter":
		gw, err = NewOpenRouterClient(OpenRouterConfig{
			APIKey:      cfg.API.OpenRouterKey,
			BaseURL:     cfg.API.OpenRouterBaseURL,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxOutputTokens,
			Referer:     cfg.API.Referer,
			Title:       cfg.API.Title,
			HTTPTimeout: cfg.API.HTTPTimeout,
		})
	case "gemini":
		gw, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.API.GeminiKey,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxOutputTokens,
		})
	case "ollama":
		gw, err = NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.API.OllamaBaseURL,
			APIKey:      cfg.API.OllamaKey,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxOutputTokens,
			HTTPTimeout: cfg.API.HTTPTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.API.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.API.RequestsPerMinute > 0 {
		gw = WithLimiter(gw, ratelimit.NewLimiter(ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.API.RequestsPerMinute,
			BurstSize:         ratelimit.DefaultConfig().BurstSize,
		}))
	}
	return gw, nil
}

type limitedGateway struct {
	Gateway
	limiter *ratelimit.Limiter
}

// WithLimiter paces calls to gw through limiter. A failed call is returned
// as is; nothing is retried.
func WithLimiter(gw Gateway, limiter *ratelimit.Limiter) Gateway {
	return &limitedGateway{Gateway: gw, limiter: limiter}
}

func (g *limitedGateway) Complete(ctx context.Context, req *Request) (*AssistantTurn, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%s: waiting for rate limit: %w", g.Name(), err)
	}
	return g.Gateway.Complete(ctx, req)
}
