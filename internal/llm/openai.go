package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements Client using the OpenAI Chat Completions API.
type OpenAIClient struct {
	log    *slog.Logger
	client openai.Client
	model  string
}

func NewOpenAIClient(log *slog.Logger, apiKey string, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		log:    log,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("llm: openai call starting", "model", c.model, "userPromptLen", len(userPrompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0),
	})
	duration := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	c.log.Debug("llm: openai call completed", "duration", duration, "finishReason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
