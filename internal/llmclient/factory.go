package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// NewClient builds the tiered client for the configured provider. Both tiers
// share one rate limiter so the per-minute budget covers the whole process.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		limiter := newLimiter(cfg.RequestsPerMinute)

		powerful, err := NewGeminiClient(ctx, cfg, cfg.Model, logger, WithRateLimiter(limiter))
		if err != nil {
			return nil, err
		}
		if cfg.FastModel == "" || cfg.FastModel == cfg.Model {
			return NewLLMRouter(logger, powerful, powerful)
		}
		fast, err := NewGeminiClient(ctx, cfg, cfg.FastModel, logger, WithRateLimiter(limiter))
		if err != nil {
			return nil, err
		}
		return NewLLMRouter(logger, fast, powerful)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
