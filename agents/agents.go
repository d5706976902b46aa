// Package agents implements the supervisor multi-agent system: specialist
// conversation agents for business and database questions, and a supervisor
// graph that routes each query to one of them via an LLM decision.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentgraph-go/agentgraph/graph"
	"github.com/agentgraph-go/agentgraph/graph/model"
)

// State is the conversation state threaded through every agent graph.
type State = graph.MessagesState

// Node names and routing values. The supervisor's routing vocabulary is
// the closed set {NodeBusinessAgent, NodeDatabaseAgent, RouteFinish}; any
// other model reply is normalized to DefaultAgent before it reaches state.
const (
	NodeSupervisor    = "supervisor"
	NodeBusinessAgent = "business_agent"
	NodeDatabaseAgent = "database_agent"
	RouteFinish       = "finish"

	// DefaultAgent handles queries the supervisor could not classify.
	DefaultAgent = NodeBusinessAgent
)

const businessPrompt = `You are a helpful business assistant with access to company knowledge base documents.
You can answer questions about business processes, policies, and supply chain operations.
Maintain context from previous messages in the conversation.`

const databasePrompt = `You are a database query assistant.
You help users query structured data from SQL databases.
You can generate SQL queries and explain the results.
Maintain context from previous messages in the conversation.`

const supervisorPrompt = `You are a supervisor routing queries to specialized agents.

Available agents:
- business_agent: Handles questions about business processes, policies, KB documents, supply chain operations
- database_agent: Handles queries about structured data, SQL queries, database information
- finish: Use this when the query has been fully answered

Analyze the user's query and respond with ONLY the agent name: business_agent, database_agent, or finish.
Consider the conversation history to maintain context.`

// agentNode builds a specialist node: it prepends the agent's system
// prompt to the conversation, asks the model, and appends the reply as a
// new assistant message.
func agentNode(m model.ChatModel, systemPrompt string) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) (State, error) {
		prompt := append([]model.Message{
			{Role: model.RoleSystem, Content: systemPrompt},
		}, s.Messages...)

		out, err := m.Chat(ctx, prompt)
		if err != nil {
			return State{}, err
		}

		return State{Messages: []model.Message{model.AssistantMessage(out.Text)}}, nil
	}
}

// supervisorNode asks the model which agent should handle the query and
// writes the decision to Next. The reply is normalized inside the node,
// so the persisted Next value is always a member of the routing set even
// when the model answers something unexpected.
func supervisorNode(m model.ChatModel) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) (State, error) {
		out, err := m.Chat(ctx, []model.Message{
			{Role: model.RoleSystem, Content: supervisorPrompt},
			{Role: model.RoleUser, Content: routingQuestion(s.Messages)},
		})
		if err != nil {
			return State{}, err
		}

		next := normalizeRoute(out.Text)
		return State{
			Next: next,
			Messages: []model.Message{
				model.AssistantMessage("Routing to: " + next),
			},
		}, nil
	}
}

// routingQuestion renders the conversation for the supervisor's prompt.
func routingQuestion(messages []model.Message) string {
	var sb strings.Builder
	sb.WriteString("Based on this conversation history, which agent should handle the query? ")
	sb.WriteString("Respond with ONLY: business_agent, database_agent, or finish.\n\nConversation:\n")
	for _, msg := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	return sb.String()
}

// normalizeRoute maps a raw model reply onto the closed routing set.
// Comparison is case-insensitive after trimming whitespace and
// punctuation; anything unrecognized falls back to DefaultAgent.
func normalizeRoute(reply string) string {
	cleaned := strings.ToLower(strings.TrimSpace(reply))
	cleaned = strings.Trim(cleaned, ".!\"'`")

	switch cleaned {
	case NodeBusinessAgent, NodeDatabaseAgent, RouteFinish:
		return cleaned
	default:
		return DefaultAgent
	}
}

// RouteSupervisor is the conditional edge router companion to the
// supervisor node: it reads the normalized Next value and returns the
// routing label. An empty Next (no decision recorded) finishes.
func RouteSupervisor(s State) string {
	if s.Next == "" {
		return RouteFinish
	}
	return s.Next
}
