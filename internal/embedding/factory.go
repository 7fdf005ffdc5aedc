package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/storyfind/internal/config"
)

// NewFromConfig creates the configured embedder, wrapped in an LRU cache when cache_size > 0.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini, onnx, mock)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		return e, nil
	}
	cached, err := NewCachedEmbedder(e, cfg.CacheSize)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	return cached, nil
}
