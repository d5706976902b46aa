package agents

import (
	"fmt"

	"github.com/agentgraph-go/agentgraph/graph"
	"github.com/agentgraph-go/agentgraph/graph/model"
)

// NewBusinessGraph compiles the business specialist as a standalone
// graph: a single node answering with the business system prompt.
func NewBusinessGraph(m model.ChatModel, opts ...graph.CompileOption[State]) (*graph.CompiledGraph[State], error) {
	return newAgentGraph("business_query", agentNode(m, businessPrompt),
		append([]graph.CompileOption[State]{graph.WithName[State](NodeBusinessAgent)}, opts...)...)
}

// NewDatabaseGraph compiles the database specialist as a standalone
// graph: a single node answering with the database system prompt.
func NewDatabaseGraph(m model.ChatModel, opts ...graph.CompileOption[State]) (*graph.CompiledGraph[State], error) {
	return newAgentGraph("database_query", agentNode(m, databasePrompt),
		append([]graph.CompileOption[State]{graph.WithName[State](NodeDatabaseAgent)}, opts...)...)
}

// newAgentGraph wires the single-node specialist topology.
func newAgentGraph(nodeName string, node graph.Node[State], opts ...graph.CompileOption[State]) (*graph.CompiledGraph[State], error) {
	g := graph.NewStateGraph(graph.ReduceMessagesState)
	if err := g.AddNode(nodeName, node); err != nil {
		return nil, err
	}
	if err := g.AddEdge(graph.Start, nodeName); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeName, graph.End); err != nil {
		return nil, err
	}
	return g.Compile(opts...)
}

// NewSupervisorGraph compiles the multi-agent system: a supervisor node
// that picks an agent, a conditional edge resolving its decision, and the
// two specialists embedded as compiled sub-graphs. Each turn runs the
// supervisor, then at most one specialist, then terminates:
//
//	Start → supervisor →(business_agent | database_agent | finish)
//	business_agent → End
//	database_agent → End
//
// The specialists are compiled without stores; the supervisor graph's
// store (from opts, or the in-memory default) is the only one that holds
// checkpoints.
func NewSupervisorGraph(m model.ChatModel, opts ...graph.CompileOption[State]) (*graph.CompiledGraph[State], error) {
	business, err := NewBusinessGraph(m)
	if err != nil {
		return nil, fmt.Errorf("agents: compiling business specialist: %w", err)
	}
	database, err := NewDatabaseGraph(m)
	if err != nil {
		return nil, fmt.Errorf("agents: compiling database specialist: %w", err)
	}

	g := graph.NewStateGraph(graph.ReduceMessagesState)
	if err := g.AddNode(NodeSupervisor, supervisorNode(m)); err != nil {
		return nil, err
	}
	if err := g.AddNode(NodeBusinessAgent, business); err != nil {
		return nil, err
	}
	if err := g.AddNode(NodeDatabaseAgent, database); err != nil {
		return nil, err
	}

	if err := g.AddEdge(graph.Start, NodeSupervisor); err != nil {
		return nil, err
	}
	if err := g.AddConditionalEdge(NodeSupervisor, RouteSupervisor, map[string]string{
		NodeBusinessAgent: NodeBusinessAgent,
		NodeDatabaseAgent: NodeDatabaseAgent,
		RouteFinish:       graph.End,
	}); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeBusinessAgent, graph.End); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeDatabaseAgent, graph.End); err != nil {
		return nil, err
	}

	return g.Compile(append([]graph.CompileOption[State]{graph.WithName[State]("multi_agent")}, opts...)...)
}
