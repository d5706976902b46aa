// Package google adapts Google's Generative AI (Gemini) SDK to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/agentgraph-go/agentgraph/graph/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel using the Gemini API.
//
// Conversation history maps onto a genai chat session: system messages
// become the model's system instruction, prior turns become session
// history, and the latest user message is sent as the prompt. The caller
// owns the lifecycle: Close releases the underlying client connection.
type ChatModel struct {
	client *genai.Client
	model  string
}

var _ model.ChatModel = (*ChatModel)(nil)

// New creates a Gemini ChatModel.
//
// The client dials lazily, but constructing it can still fail on invalid
// options. An empty modelName selects DefaultModel.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &ChatModel{client: client, model: modelName}, nil
}

// Name returns "google".
func (m *ChatModel) Name() string { return "google" }

// Close releases the underlying API client.
func (m *ChatModel) Close() error {
	return m.client.Close()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	gm := m.client.GenerativeModel(m.model)

	system, history, prompt := splitConversation(messages)
	if prompt == "" {
		return model.ChatOut{}, &model.ProviderError{
			Provider: "google",
			Message:  "conversation has no user message to send",
		}
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := gm.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return model.ChatOut{}, model.Classify("google", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return model.ChatOut{}, err
	}

	out := model.ChatOut{Text: text, Model: m.model}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// splitConversation partitions messages into the system instruction, the
// chat history, and the final user prompt. Gemini requires the prompt to
// be sent separately from the history, so the trailing user message is
// peeled off; everything before it becomes history with Gemini's
// user/model role vocabulary.
func splitConversation(messages []model.Message) (system string, history []*genai.Content, prompt string) {
	var systemParts []string
	var turns []model.Message

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}

	// Peel the trailing user message off as the prompt.
	if n := len(turns); n > 0 && turns[n-1].Role == model.RoleUser {
		prompt = turns[n-1].Content
		turns = turns[:n-1]
	}

	for _, msg := range turns {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	return strings.Join(systemParts, "\n\n"), history, prompt
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &model.ProviderError{
			Provider: "google",
			Message:  "empty response: no candidates returned",
		}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
