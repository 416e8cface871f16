package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ewintr.nl/vidqa/model"
	"github.com/sashabaranov/go-openai"
)

var ErrNoAPIKey = errors.New("openai api key not configured")

type OpenAIInfo struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

type OpenAI struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAI(info OpenAIInfo) *OpenAI {
	cfg := openai.DefaultConfig(info.APIKey)
	if info.BaseURL != "" {
		cfg.BaseURL = info.BaseURL
	}
	o := &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		apiKey:      info.APIKey,
		model:       info.Model,
		maxTokens:   info.MaxTokens,
		temperature: info.Temperature,
	}
	if o.model == "" {
		o.model = openai.GPT3Dot5Turbo
	}
	return o
}

func (o *OpenAI) Complete(ctx context.Context, system string, turns []model.Turn) (string, error) {
	if o.apiKey == "" {
		return "", ErrNoAPIKey
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[len(resp.Choices)-1].Message.Content)
	if content == "" {
		return "", errors.New("completion returned empty content")
	}

	return content, nil
}
