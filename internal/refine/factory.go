package refine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/storyfind/internal/config"
)

// NewFromConfig builds the refiner described by cfg. A disabled config yields a pass-through refiner.
func NewFromConfig(ctx context.Context, cfg config.RefinerConfig, logger *zap.Logger) (*Refiner, error) {
	if !cfg.EnabledOrDefault() {
		return Disabled(), nil
	}
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		gen, err = NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		gen, err = NewAnthropicGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "gemini":
		gen, err = NewGeminiGenerator(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown refiner provider: %s (supported: openai, anthropic, gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return New(gen,
		WithLogger(logger),
		WithMaxTokens(cfg.MaxTokens),
		WithTemperature(cfg.Temperature),
		WithTimeout(cfg.Timeout),
	), nil
}
