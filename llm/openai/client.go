// Package openai implements llm.Client on top of any OpenAI-compatible chat
// completions endpoint. Mira talks to OpenRouter through it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aivoicefromthevoid/mira/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenRouter does not always send retry-after on 429s.
const defaultRetryAfter = 60 * time.Second

// Options configures the client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string // Default model to use if not specified in request
	// Referer and Title are sent as the HTTP-Referer and X-Title headers
	// OpenRouter uses for attribution.
	Referer string
	Title   string
	Timeout time.Duration
}

// Client implements the llm.Client interface for OpenAI-compatible APIs.
type Client struct {
	client   *openai.Client
	model    string
	provider string
}

// NewClient creates a new Client. An empty BaseURL uses OpenRouter.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(opts.APIKey)
	config.BaseURL = opts.BaseURL
	if config.BaseURL == "" {
		config.BaseURL = llm.DefaultOpenRouterBaseURL
	}
	config.HTTPClient = &http.Client{
		Timeout: opts.Timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			referer: opts.Referer,
			title:   opts.Title,
		},
	}

	return &Client{
		client:   openai.NewClientWithConfig(config),
		model:    opts.Model,
		provider: llm.ProviderOpenRouter,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError("no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	stopReason := "stop"
	if choice.FinishReason == openai.FinishReasonLength {
		stopReason = "max_tokens"
	}

	answeredBy := chatResp.Model
	if answeredBy == "" {
		answeredBy = model
	}

	return &llm.Response{
		Text:  choice.Message.Content,
		Model: answeredBy,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}

func toOpenAIMessages(system string, msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return out
}

// convertError converts OpenAI API errors to llm.Error types.
func (c *Client) convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := llm.FromStatus(c.provider, apiErr.HTTPStatusCode, apiErr.Message, err)
		if e.Type == llm.ErrorTypeRateLimit {
			retryAfter := defaultRetryAfter
			e.RetryAfter = &retryAfter
		}
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.FromStatus(c.provider, reqErr.HTTPStatusCode, "request failed", err)
	}

	return llm.FromTransport(c.provider, err)
}

type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer == "" && t.title == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}
