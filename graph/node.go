package graph

import "context"

// Node represents a processing unit in the graph.
// It receives the current state of type S, performs computation, and returns
// a partial state update (delta).
//
// Nodes are the fundamental building blocks of agent graphs.
// Each node can:
//   - Access the current merged state
//   - Perform computation (call LLMs, query databases, or custom logic)
//   - Return state modifications as a delta
//   - Report errors
//
// Nodes never decide where execution goes next. Routing is declared on the
// graph as static or conditional edges, evaluated after the node's delta has
// been merged into the state.
//
// The returned delta is merged into the current state by the graph's
// Reducer. Returning the zero value of S is a valid "no changes" update.
//
// Type parameter S is the state type shared across the graph.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	// It returns the partial state update to merge, or an error that
	// halts the current invocation.
	Run(ctx context.Context, state S) (S, error)
}

// NodeFunc is a function adapter that implements the Node interface.
// It allows using plain functions as nodes without creating custom types.
//
// Example:
//
//	greet := graph.NodeFunc[MyState](func(ctx context.Context, s MyState) (MyState, error) {
//	    return MyState{Result: "hello " + s.Name}, nil
//	})
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) (S, error) {
	return f(ctx, state)
}

// NodeError represents an error that occurred during node execution.
// It provides structured error information for better observability and debugging.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
