package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	Model     string
	MaxTokens int64
	client    anthropic.Client
}

// NewAnthropicClient constructs an AnthropicClient. An empty apiKey falls
// back to the SDK's ANTHROPIC_API_KEY lookup.
func NewAnthropicClient(model, apiKey, baseURL string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		Model:     model,
		MaxTokens: defaultAnthropicMaxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

// GenerateAnalysis sends one system + user turn at temperature 0 and returns
// the concatenated text blocks of the reply.
func (a *AnthropicClient) GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   a.MaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var parts []string
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return "", errors.New("anthropic returned no text content")
	}
	return text, nil
}
