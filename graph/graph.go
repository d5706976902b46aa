// Package graph provides the core graph definition and execution engine
// for AgentGraph: typed state with reducer-based merging, static and
// conditional routing, and checkpointed execution keyed by thread ID.
package graph

import (
	"sort"
	"sync"

	"github.com/agentgraph-go/agentgraph/graph/emit"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// StateGraph is a mutable graph under construction.
//
// Register nodes with AddNode, wire them with AddEdge and
// AddConditionalEdge, then call Compile to validate the topology and
// obtain an executable CompiledGraph. The builder can keep being
// modified after Compile; compiled graphs hold their own snapshot and
// are unaffected.
//
// Construction order is free: edges may reference nodes that are added
// later. Endpoint existence is validated at Compile, not at Add.
//
// Example:
//
//	g := graph.NewStateGraph[MyState](graph.ReduceMyState)
//	_ = g.AddNode("work", workNode)
//	_ = g.AddNode("review", reviewNode)
//	_ = g.AddEdge(graph.Start, "work")
//	_ = g.AddEdge("work", "review")
//	_ = g.AddConditionalEdge("review", routeReview, map[string]string{
//	    "again": "work",
//	    "done":  graph.End,
//	})
//	compiled, err := g.Compile(graph.WithStore(st))
type StateGraph[S any] struct {
	mu           sync.Mutex
	reducer      Reducer[S]
	nodes        map[string]Node[S]
	nodeOrder    []string
	edges        map[string]edge
	conditionals map[string]conditionalEdge[S]
	routeOrder   []string
	entry        string
}

// NewStateGraph creates an empty graph builder for state type S.
//
// The reducer merges each node's returned delta into the accumulated
// state. It may be nil during construction but must be set before
// Compile succeeds.
func NewStateGraph[S any](reducer Reducer[S]) *StateGraph[S] {
	return &StateGraph[S]{
		reducer:      reducer,
		nodes:        make(map[string]Node[S]),
		edges:        make(map[string]edge),
		conditionals: make(map[string]conditionalEdge[S]),
	}
}

// AddNode registers a node under a unique name.
//
// Returns error if:
//   - name is empty or node is nil
//   - name is the Start or End sentinel (code RESERVED_NODE)
//   - a node with this name is already registered (code DUPLICATE_NODE)
func (g *StateGraph[S]) AddNode(name string, node Node[S]) error {
	if name == "" {
		return &EngineError{Message: "node name cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}
	if name == Start || name == End {
		return &EngineError{
			Message: "cannot register node under reserved name: " + name,
			Code:    CodeReservedNode,
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; exists {
		return &EngineError{
			Message: "duplicate node name: " + name,
			Code:    CodeDuplicateNode,
		}
	}

	g.nodes[name] = node
	g.nodeOrder = append(g.nodeOrder, name)
	return nil
}

// AddEdge creates a static transition: after from completes, execution
// always moves to to.
//
// AddEdge(Start, n) designates n as the entry node. An edge to End
// terminates the invocation.
//
// Each node carries exactly one route (static or conditional); adding a
// second one fails with code DUPLICATE_ROUTER.
//
// Node existence is not validated here (construction order is free);
// unknown endpoints surface at Compile with code UNKNOWN_NODE.
func (g *StateGraph[S]) AddEdge(from, to string) error {
	if from == "" {
		return &EngineError{Message: "from node name cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node name cannot be empty"}
	}
	if to == Start {
		return &EngineError{
			Message: "edge cannot target Start",
			Code:    CodeReservedNode,
		}
	}
	if from == End {
		return &EngineError{
			Message: "edge cannot leave End",
			Code:    CodeReservedNode,
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if from == Start {
		if g.entry != "" {
			return &EngineError{
				Message: "entry edge already set: " + g.entry,
				Code:    CodeDuplicateRouter,
			}
		}
		g.entry = to
		return nil
	}

	if g.hasRoute(from) {
		return &EngineError{
			Message: "node already has a route: " + from,
			Code:    CodeDuplicateRouter,
		}
	}

	g.edges[from] = edge{from: from, to: to}
	g.routeOrder = append(g.routeOrder, from)
	return nil
}

// AddConditionalEdge creates a routed transition: after from completes,
// router runs on the merged state and its return value is resolved
// through destinations (label → node name or End).
//
// The destination map is the complete set of labels the router may
// return. A router returning an undeclared label at runtime fails the
// invocation with code UNDECLARED_DESTINATION.
//
// Returns error if:
//   - from is empty or router is nil
//   - from is Start or End, or a destination targets Start (code RESERVED_NODE)
//   - destinations is empty (code EMPTY_DESTINATIONS)
//   - from already has a route (code DUPLICATE_ROUTER)
func (g *StateGraph[S]) AddConditionalEdge(from string, router Router[S], destinations map[string]string) error {
	if from == "" {
		return &EngineError{Message: "from node name cannot be empty"}
	}
	if router == nil {
		return &EngineError{Message: "router cannot be nil"}
	}
	if from == Start || from == End {
		return &EngineError{
			Message: "conditional edge cannot leave reserved node: " + from,
			Code:    CodeReservedNode,
		}
	}
	if len(destinations) == 0 {
		return &EngineError{
			Message: "conditional edge needs at least one destination",
			Code:    CodeEmptyDestinations,
		}
	}
	for label, dest := range destinations {
		if dest == Start {
			return &EngineError{
				Message: "destination " + label + " cannot target Start",
				Code:    CodeReservedNode,
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasRoute(from) {
		return &EngineError{
			Message: "node already has a route: " + from,
			Code:    CodeDuplicateRouter,
		}
	}

	// Copy the map so later caller mutations can't change the graph.
	dests := make(map[string]string, len(destinations))
	for label, dest := range destinations {
		dests[label] = dest
	}

	g.conditionals[from] = conditionalEdge[S]{
		from:         from,
		router:       router,
		destinations: dests,
	}
	g.routeOrder = append(g.routeOrder, from)
	return nil
}

// hasRoute reports whether from already has an outgoing route.
// Caller must hold g.mu.
func (g *StateGraph[S]) hasRoute(from string) bool {
	if _, exists := g.edges[from]; exists {
		return true
	}
	_, exists := g.conditionals[from]
	return exists
}

// Compile validates the graph and returns an immutable executable form.
//
// Validation (first failure wins, in this order):
//   - a reducer was supplied (code MISSING_REDUCER)
//   - an entry edge from Start exists (code NO_ENTRY)
//   - the entry target and every route endpoint name a registered node
//     or End (code UNKNOWN_NODE)
//   - every registered node has an outgoing route (code MISSING_ROUTE)
//   - every registered node is reachable from the entry (code
//     UNREACHABLE_NODE)
//
// Unless overridden by options, the compiled graph persists to a fresh
// in-memory store, discards events, and limits invocations to
// DefaultMaxSteps node executions.
//
// The compiled graph holds a snapshot: mutating the builder afterwards
// does not affect it.
func (g *StateGraph[S]) Compile(opts ...CompileOption[S]) (*CompiledGraph[S], error) {
	cfg := compileConfig[S]{
		maxSteps: DefaultMaxSteps,
		name:     "graph",
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reducer == nil {
		return nil, &EngineError{
			Message: "graph has no reducer",
			Code:    CodeMissingReducer,
		}
	}
	if g.entry == "" {
		return nil, &EngineError{
			Message: "no entry edge: add an edge from Start",
			Code:    CodeNoEntry,
		}
	}
	if _, exists := g.nodes[g.entry]; !exists {
		return nil, &EngineError{
			Message: "entry node does not exist: " + g.entry,
			Code:    CodeUnknownNode,
		}
	}

	// Route endpoints must name registered nodes (or End), checked in
	// the order routes were added so the first error is deterministic.
	for _, from := range g.routeOrder {
		if _, exists := g.nodes[from]; !exists {
			return nil, &EngineError{
				Message: "route leaves unknown node: " + from,
				Code:    CodeUnknownNode,
			}
		}
		if e, ok := g.edges[from]; ok {
			if err := g.checkDestination(e.to); err != nil {
				return nil, err
			}
			continue
		}
		ce := g.conditionals[from]
		for _, label := range sortedLabels(ce.destinations) {
			if err := g.checkDestination(ce.destinations[label]); err != nil {
				return nil, err
			}
		}
	}

	// Every node needs a way out.
	for _, name := range g.nodeOrder {
		if !g.hasRoute(name) {
			return nil, &EngineError{
				Message: "node has no outgoing route: " + name,
				Code:    CodeMissingRoute,
			}
		}
	}

	// Every node must be reachable from the entry.
	reached := g.reachableFromEntry()
	for _, name := range g.nodeOrder {
		if !reached[name] {
			return nil, &EngineError{
				Message: "node is unreachable from entry: " + name,
				Code:    CodeUnreachableNode,
			}
		}
	}

	if cfg.store == nil {
		cfg.store = store.NewMemStore[S]()
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}

	return &CompiledGraph[S]{
		name:         cfg.name,
		reducer:      g.reducer,
		nodes:        copyNodes(g.nodes),
		edges:        copyEdges(g.edges),
		conditionals: copyConditionals(g.conditionals),
		entry:        g.entry,
		store:        cfg.store,
		emitter:      cfg.emitter,
		metrics:      cfg.metrics,
		maxSteps:     cfg.maxSteps,
	}, nil
}

// checkDestination validates a route endpoint. Caller must hold g.mu.
func (g *StateGraph[S]) checkDestination(dest string) error {
	if dest == End {
		return nil
	}
	if _, exists := g.nodes[dest]; !exists {
		return &EngineError{
			Message: "route targets unknown node: " + dest,
			Code:    CodeUnknownNode,
		}
	}
	return nil
}

// reachableFromEntry walks the route graph breadth-first from the entry
// node. Caller must hold g.mu.
func (g *StateGraph[S]) reachableFromEntry() map[string]bool {
	reached := map[string]bool{g.entry: true}
	queue := []string{g.entry}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var next []string
		if e, ok := g.edges[current]; ok {
			next = append(next, e.to)
		}
		if ce, ok := g.conditionals[current]; ok {
			for _, label := range sortedLabels(ce.destinations) {
				next = append(next, ce.destinations[label])
			}
		}

		for _, dest := range next {
			if dest == End || reached[dest] {
				continue
			}
			reached[dest] = true
			queue = append(queue, dest)
		}
	}

	return reached
}

func sortedLabels(m map[string]string) []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func copyNodes[S any](src map[string]Node[S]) map[string]Node[S] {
	dst := make(map[string]Node[S], len(src))
	for name, node := range src {
		dst[name] = node
	}
	return dst
}

func copyEdges(src map[string]edge) map[string]edge {
	dst := make(map[string]edge, len(src))
	for from, e := range src {
		dst[from] = e
	}
	return dst
}

func copyConditionals[S any](src map[string]conditionalEdge[S]) map[string]conditionalEdge[S] {
	dst := make(map[string]conditionalEdge[S], len(src))
	for from, ce := range src {
		dests := make(map[string]string, len(ce.destinations))
		for label, dest := range ce.destinations {
			dests[label] = dest
		}
		dst[from] = conditionalEdge[S]{from: ce.from, router: ce.router, destinations: dests}
	}
	return dst
}
