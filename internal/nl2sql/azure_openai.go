package nl2sql

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// AzureOpenAICompleter calls a chat deployment on Azure OpenAI
type AzureOpenAICompleter struct {
	client     *openai.Client
	deployment string
	maxTokens  int
}

func NewAzureOpenAICompleter(endpoint, apiKey, deployment, apiVersion string) *AzureOpenAICompleter {
	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimSuffix(endpoint, "/"))
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &AzureOpenAICompleter{
		client:     openai.NewClientWithConfig(cfg),
		deployment: deployment,
		maxTokens:  1024,
	}
}

func (c *AzureOpenAICompleter) Model() string {
	return "azure-openai/" + c.deployment
}

func (c *AzureOpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", &ModelError{Provider: "azure_openai", StatusCode: openAIStatus(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ModelError{Provider: "azure_openai", StatusCode: 200, Err: errors.New("completion has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
