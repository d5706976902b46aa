// Package model provides LLM integration adapters.
package model

import (
	"context"

	"github.com/google/uuid"
)

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between various LLM providers
// (OpenAI, Anthropic, Google, local models) providing a unified API for
// chat-based interactions.
//
// Implementations should:
//   - Handle provider-specific authentication
//   - Convert standard Message format to provider-specific format
//   - Parse provider responses back to standard ChatOut format
//   - Respect context cancellation and timeouts
//   - Handle rate limiting appropriately
//
// Example usage:
//
//	m := openai.New(apiKey, "gpt-4o-mini")
//	messages := []model.Message{
//	    model.SystemMessage("You are a helpful assistant."),
//	    model.UserMessage("What is the capital of France?"),
//	}
//	out, err := m.Chat(ctx, messages)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Text) // "The capital of France is Paris."
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control.
	//   - messages: Conversation history (system, user, assistant messages).
	//
	// Returns:
	//   - ChatOut: LLM response text plus usage accounting.
	//   - error: Provider errors, network errors, or context cancellation.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single entry in a conversation.
//
// Messages are the fundamental unit of conversation state. They follow the
// common chat format used by OpenAI, Anthropic, Google, and other providers,
// extended with a stable identifier so that state merges can deduplicate
// entries: merging a message whose ID is already present replaces the
// existing entry instead of appending a duplicate.
//
// Typical conversation structure:
//   - System message (optional): sets context and behavior.
//   - User messages: user input or questions.
//   - Assistant messages: LLM responses.
//
// Example:
//
//	conversation := []model.Message{
//	    model.SystemMessage("You are a helpful assistant."),
//	    model.UserMessage("What is the capital of France?"),
//	    model.AssistantMessage("The capital of France is Paris."),
//	}
type Message struct {
	// ID is the stable identifier used for deduplication across merges.
	// The constructor helpers assign a fresh UUID. An empty ID means the
	// entry has no dedup identity and is always appended.
	ID string `json:"id"`

	// Role identifies the message sender.
	// Standard roles: "system", "user", "assistant".
	// Use the Role* constants for consistency.
	Role string `json:"role"`

	// Content contains the message text.
	Content string `json:"content"`
}

// Standard role constants for LLM conversations.
// These align with the conventions used by major LLM providers.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	// System messages typically appear first in a conversation.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	RoleAssistant = "assistant"
)

// SystemMessage builds a system-role Message with a fresh UUID.
func SystemMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role Message with a fresh UUID.
func UserMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role Message with a fresh UUID.
func AssistantMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Content: content}
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	Text string

	// Model identifies which model served the request, when known.
	Model string

	// TokensUsed reports total token consumption (input + output) when the
	// provider makes it available, zero otherwise.
	TokensUsed int
}
