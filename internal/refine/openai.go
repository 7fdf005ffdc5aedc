package refine

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIGenerator uses the OpenAI Chat Completions API.
type OpenAIGenerator struct {
	client openaisdk.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI generator. Returns an error if the API key is missing.
func NewOpenAIGenerator(apiKey, baseURL, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing api_key in config")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGenerator{client: openaisdk.NewClient(opts...), model: model}, nil
}

// Generate sends one system and one user message and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(req.System),
			openaisdk.UserMessage(req.User),
		},
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", providerError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
