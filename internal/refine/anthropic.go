package refine

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator uses the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropicsdk.Client
	model  string
}

// NewAnthropicGenerator creates an Anthropic generator. Returns an error if the API key is missing.
func NewAnthropicGenerator(apiKey, baseURL, model string) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: missing api_key in config")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicGenerator{client: anthropicsdk.NewClient(opts...), model: model}, nil
}

// Generate sends a single user turn and concatenates the text blocks of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.User)),
		},
		Temperature: anthropicsdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", providerError("anthropic", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
