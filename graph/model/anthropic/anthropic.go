// Package anthropic adapts the official Anthropic Go SDK to model.ChatModel.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentgraph-go/agentgraph/graph/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "claude-sonnet-4-20250514"

// maxTokens caps the response length per request.
const maxTokens = 4096

// ChatModel implements model.ChatModel using Anthropic's Messages API.
//
// System-role messages are lifted into the request's system blocks
// (Anthropic keeps them out of the user/assistant turn list); the rest of
// the conversation maps positionally onto message params.
//
// ChatModel is safe for concurrent use.
type ChatModel struct {
	client anthropic.Client
	model  string
}

var _ model.ChatModel = (*ChatModel)(nil)

// New creates an Anthropic ChatModel.
//
// apiKey can be obtained from https://console.anthropic.com/. An empty
// modelName selects DefaultModel.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	return &ChatModel{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  modelName,
	}
}

// Name returns "anthropic".
func (m *ChatModel) Name() string { return "anthropic" }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, model.Classify("anthropic", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text:       sb.String(),
		Model:      string(message.Model),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}

// splitSystem separates system-role content from the conversational turns.
// Multiple system messages are joined with blank lines, preserving order.
func splitSystem(messages []model.Message) (string, []anthropic.MessageParam) {
	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return strings.Join(system, "\n\n"), turns
}
