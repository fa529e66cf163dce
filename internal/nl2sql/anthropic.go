package nl2sql

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter calls the Anthropic Messages API or a compatible proxy
type AnthropicCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicCompleter builds a completer. SDK-level retries are disabled;
// the translator owns the retry policy.
func NewAnthropicCompleter(apiKey, model, baseURL string) *AnthropicCompleter {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicCompleter{
		client:    client,
		model:     model,
		maxTokens: 1024,
	}
}

func (c *AnthropicCompleter) Model() string {
	return "anthropic/" + c.model
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(c.model)),
		MaxTokens: anthropic.F(int64(c.maxTokens)),
		System:    anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(system)}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		}),
	})
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", &ModelError{Provider: "anthropic", StatusCode: status, Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	if text.Len() == 0 {
		return "", &ModelError{Provider: "anthropic", StatusCode: 200, Err: errors.New("response has no text content")}
	}
	return text.String(), nil
}
