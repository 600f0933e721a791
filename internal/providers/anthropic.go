package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-sonnet-latest"
	defaultAnthropicMaxTokens = 2048
)

// AnthropicClient calls the Anthropic Messages API directly
type AnthropicClient struct {
	apiKey       string
	defaultModel string
	client       anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client. Extra request options
// (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicClient(apiKey, defaultModel string, opts ...option.RequestOption) *AnthropicClient {
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       anthropic.NewClient(opts...),
	}
}

func (a *AnthropicClient) GetName() string {
	return "anthropic"
}

func (a *AnthropicClient) IsEnabled() bool {
	return a.apiKey != ""
}

// Complete sends one prompt and concatenates the text blocks of the reply
func (a *AnthropicClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !a.IsEnabled() {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Content: content.String(),
		Model:   string(message.Model),
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}
