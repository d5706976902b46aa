// Package openai adapts the official OpenAI Go SDK to model.ChatModel.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agentgraph-go/agentgraph/graph/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel using OpenAI's chat completions API.
//
// Transient transport failures (rate limits, 5xx, network) are retried with
// a short linear backoff before the call is reported as failed, so from the
// engine's perspective one node execution is still a single collaborator
// call. Permanent failures (bad credentials, malformed request) are
// returned immediately.
//
// ChatModel is safe for concurrent use.
//
// Example:
//
//	m := openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Chat(ctx, []model.Message{
//	    model.SystemMessage("You are a helpful assistant."),
//	    model.UserMessage("What is the capital of France?"),
//	})
type ChatModel struct {
	client     openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

var _ model.ChatModel = (*ChatModel)(nil)

// New creates an OpenAI ChatModel.
//
// apiKey must be a valid OpenAI API key. An empty modelName selects
// DefaultModel.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	return &ChatModel{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      modelName,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Name returns "openai".
func (m *ChatModel) Name() string { return "openai" }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.model),
		Messages: convertMessages(messages),
	}

	var lastErr *model.ProviderError
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		completion, err := m.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return convertResponse(completion)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.ChatOut{}, err
		}

		lastErr = model.Classify("openai", err)
		if !lastErr.Retryable || attempt == m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}

	return model.ChatOut{}, lastErr
}

// convertMessages maps the shared Message format to OpenAI's param union.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// convertResponse extracts the reply text and usage from a completion.
func convertResponse(completion *openai.ChatCompletion) (model.ChatOut, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, &model.ProviderError{
			Provider: "openai",
			Message:  "empty completion: no choices returned",
		}
	}

	return model.ChatOut{
		Text:       completion.Choices[0].Message.Content,
		Model:      completion.Model,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}
