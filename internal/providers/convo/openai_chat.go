package convo

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat adapts a chat-completions endpoint to the Provider
// contract. The survey instructions arrive as an opaque system prompt
// assembled elsewhere; this adapter only shuttles turns back and forth.
type OpenAIChat struct {
	client *openai.Client
	model  string

	// SystemPrompt is the full per-survey instruction payload.
	SystemPrompt string
	// ExtractPrompt instructs the model to emit answers as a JSON object.
	ExtractPrompt string
}

func NewOpenAIChat(apiKey, baseURL, model, systemPrompt, extractPrompt string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIChat{
		client:        openai.NewClientWithConfig(cfg),
		model:         model,
		SystemPrompt:  systemPrompt,
		ExtractPrompt: extractPrompt,
	}
}

func (o *OpenAIChat) messages(history []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.SystemPrompt,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == "interviewer" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return msgs
}

func (o *OpenAIChat) Respond(ctx context.Context, history []Turn, utterance string) (string, error) {
	msgs := o.messages(history)
	if utterance != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: utterance,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: 0.6,
		MaxTokens:   220,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAIChat) Extract(ctx context.Context, history []Turn) (map[string]any, error) {
	msgs := o.messages(history)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: o.ExtractPrompt,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	var answers map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &answers); err != nil {
		return nil, err
	}
	return answers, nil
}
