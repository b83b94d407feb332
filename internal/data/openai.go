package data

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

const defaultOpenAIModel = openai.GPT4oMini

// openaiRepo implements the completion repository over an
// OpenAI-compatible chat completion endpoint
type openaiRepo struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIRepo creates a completion repository.
// An empty baseURL means api.openai.com; an empty model means gpt-4o-mini.
func NewOpenAIRepo(apiKey, baseURL, model string) repo.CompletionRepo {
	if model == "" {
		model = defaultOpenAIModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &openaiRepo{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		maxTokens: 150, // Replies are one or two sentences
	}
}

// Complete sends the system instruction and user text and returns the answer
func (r *openaiRepo) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		Temperature: 0.8,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
