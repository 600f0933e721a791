package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	openRouterBaseURL      = "https://openrouter.ai"
	defaultOpenRouterModel = "anthropic/claude-3.5-sonnet"
)

// ChatRequest is a single-turn completion request
type ChatRequest struct {
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// Usage reports token counts for a completion
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is a completion result
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// OpenRouterClient calls hosted LLMs through OpenRouter
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	referer      string
	client       *resty.Client
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openRouterMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenRouterClient creates a new OpenRouter client
func NewOpenRouterClient(apiKey, defaultModel, referer string) *OpenRouterClient {
	if defaultModel == "" {
		defaultModel = defaultOpenRouterModel
	}
	return &OpenRouterClient{
		apiKey:       apiKey,
		baseURL:      openRouterBaseURL,
		defaultModel: defaultModel,
		referer:      referer,
		client:       newClient(),
	}
}

// WithBaseURL points the client at a different host
func (o *OpenRouterClient) WithBaseURL(baseURL string) *OpenRouterClient {
	o.baseURL = strings.TrimRight(baseURL, "/")
	return o
}

func (o *OpenRouterClient) GetName() string {
	return "openrouter"
}

func (o *OpenRouterClient) IsEnabled() bool {
	return o.apiKey != ""
}

// Complete sends one prompt and returns the first choice
func (o *OpenRouterClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !o.IsEnabled() {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	var messages []openRouterMessage
	if req.System != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openRouterMessage{Role: "user", Content: req.Prompt})

	request := o.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+o.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(openRouterRequest{
			Model:       model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
	if o.referer != "" {
		request.SetHeader("HTTP-Referer", o.referer)
	}

	resp, err := request.Post(o.baseURL + "/api/v1/chat/completions")
	if err := checkResponse("openrouter", resp, err); err != nil {
		return nil, err
	}

	var completion openRouterResponse
	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return nil, fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	return &ChatResponse{
		Content: completion.Choices[0].Message.Content,
		Model:   completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}
