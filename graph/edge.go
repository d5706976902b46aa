package graph

// Reserved pseudo-node names used when wiring a graph.
//
// Start and End never execute. An edge from Start designates the entry
// node; an edge (or conditional destination) pointing at End terminates
// the invocation. Regular nodes cannot be registered under these names.
const (
	// Start is the virtual entry point of a graph.
	Start = "__start__"

	// End is the virtual finish point of a graph.
	End = "__end__"
)

// Router selects the next hop after a node completes.
//
// The router runs on the merged state (the node's delta already applied)
// and returns a label that is looked up in the destination map declared
// with AddConditionalEdge. Returning a label absent from the map is a
// runtime routing error that halts the invocation without persisting.
//
// Routers should be pure functions (deterministic, no side effects).
//
// Common patterns:
// - Dispatch on a routing field: return state.Next.
// - Threshold: score above a limit routes to "approve", otherwise "review".
// - Completion check: done routes to graph.End, otherwise back to "work".
//
// Type parameter S is the state type to evaluate.
type Router[S any] func(state S) string

// edge is a static transition: after from completes, execution moves to to.
type edge struct {
	from string
	to   string
}

// conditionalEdge routes from a source node through a router whose return
// value is resolved against the declared destination map. Every label the
// router can return must appear as a key; values name registered nodes
// or End.
type conditionalEdge[S any] struct {
	from         string
	router       Router[S]
	destinations map[string]string
}
