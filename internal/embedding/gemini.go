package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig holds Gemini embedding settings.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// GeminiEmbedder calls the Gemini embed-content endpoint.
type GeminiEmbedder struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiEmbedder creates a Gemini embedder. Returns an error if the API key is missing.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiEmbedder{client: client, config: cfg}, nil
}

// Embed embeds a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Vectors are L2-normalized because truncated
// Gemini embeddings are not unit length.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{}
	if e.config.Dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.config.Dimensions))
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		vec := append([]float32(nil), emb.Values...)
		if err := checkDimensions("gemini", e.config.Dimensions, vec); err != nil {
			return nil, err
		}
		NormalizeL2Slice(vec)
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close is a no-op.
func (e *GeminiEmbedder) Close() error { return nil }
