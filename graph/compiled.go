package graph

import (
	"context"
	"time"

	"github.com/agentgraph-go/agentgraph/graph/emit"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// CompiledGraph is an immutable, validated, executable graph produced by
// StateGraph.Compile.
//
// A compiled graph is safe for concurrent use: Invoke and Stream may be
// called from multiple goroutines with different (or the same) thread IDs.
// All mutable execution state lives on the stack of each call; the graph
// itself is never modified after compilation.
//
// CompiledGraph also implements Node, so a compiled graph can be added to
// another graph with AddNode. When run as a node, the sub-graph executes
// its internal loop on the state it receives and returns its final merged
// state as the delta; the parent graph's checkpoint store is the only one
// that persists.
type CompiledGraph[S any] struct {
	name         string
	reducer      Reducer[S]
	nodes        map[string]Node[S]
	edges        map[string]edge
	conditionals map[string]conditionalEdge[S]
	entry        string

	store    store.Store[S]
	emitter  emit.Emitter
	metrics  *Metrics
	maxSteps int
}

// Compile-time check: a compiled graph is usable as a node in another graph.
var _ Node[struct{}] = (*CompiledGraph[struct{}])(nil)

// StreamEvent is one element of the stream produced by CompiledGraph.Stream.
//
// Each node completion yields one event carrying the partial update that
// node returned, before it is visible in any checkpoint. The final element
// always has Node == End; it carries the invocation's final merged state,
// and Err is non-nil if the invocation failed.
type StreamEvent[S any] struct {
	// Node is the name of the node that just completed, or End for the
	// terminal element.
	Node string

	// Step is the sequential execution number of the completed node
	// (1-indexed).
	Step int

	// Update is the partial update the node returned. On the terminal
	// element it is instead the final merged state (zero when Err is set
	// by a failed invocation).
	Update S

	// Err is non-nil on the terminal element of a failed invocation.
	Err error
}

// Invoke executes the graph for one turn of the given thread.
//
// The flow is:
//  1. Load the thread's latest checkpoint (zero state for a fresh thread).
//  2. Merge input into the checkpoint via the graph's reducer.
//  3. Run nodes from the entry, merging each delta and routing on the
//     merged state, until a route reaches End.
//  4. Persist the final merged state as the thread's next checkpoint.
//
// Nothing is persisted unless the invocation terminates normally: a node
// error, an undeclared routing label, a cancelled context, or an exceeded
// step limit all leave the thread's checkpoint exactly as it was, so the
// same turn can be retried. If execution succeeds but the checkpoint save
// fails, Invoke returns the final state together with the save error so
// the caller can decide whether to surface or retry.
func (c *CompiledGraph[S]) Invoke(ctx context.Context, threadID string, input S) (S, error) {
	final, _, err := c.runThreadSteps(ctx, threadID, input, nil)
	return final, err
}

// Stream executes the graph for one turn of the given thread, yielding an
// event after every node completes.
//
// Semantics are identical to Invoke (same loading, merging, routing and
// terminal-only persistence); the returned channel additionally surfaces
// each node's partial update in transition order. The channel is closed
// after the terminal element, which always has Node == End and carries the
// final merged state and any invocation error.
//
// The consumer should drain the channel; if the consumer abandons it,
// cancel ctx to release the invocation goroutine.
func (c *CompiledGraph[S]) Stream(ctx context.Context, threadID string, input S) <-chan StreamEvent[S] {
	ch := make(chan StreamEvent[S])

	go func() {
		defer close(ch)

		observe := func(nodeID string, step int, update S) {
			select {
			case ch <- StreamEvent[S]{Node: nodeID, Step: step, Update: update}:
			case <-ctx.Done():
			}
		}

		final, steps, err := c.runThreadSteps(ctx, threadID, input, observe)

		select {
		case ch <- StreamEvent[S]{Node: End, Step: steps, Update: final, Err: err}:
		case <-ctx.Done():
		}
	}()

	return ch
}

// Run implements the Node interface, allowing a compiled graph to execute
// as a node inside another graph.
//
// The sub-graph runs its internal loop directly on the state it receives:
// no checkpoint is loaded and none is saved (persistence belongs to the
// outermost graph). The sub-graph's final merged state is returned as the
// delta. Because reducers are idempotent for re-merged updates, merging
// that full state into the parent's state is safe.
func (c *CompiledGraph[S]) Run(ctx context.Context, state S) (S, error) {
	final, _, err := c.execute(ctx, "", state, nil)
	if err != nil {
		var zero S
		return zero, err
	}
	return final, nil
}

// State returns the thread's latest checkpoint, including version and
// save time. Returns store.ErrNotFound for a thread that has never
// completed an invocation.
func (c *CompiledGraph[S]) State(ctx context.Context, threadID string) (store.Checkpoint[S], error) {
	return c.store.Get(ctx, threadID)
}

// DeleteState removes all checkpoints for a thread. Returns
// store.ErrNotFound if the thread has none. A subsequent Invoke starts
// the thread fresh from the zero state.
func (c *CompiledGraph[S]) DeleteState(ctx context.Context, threadID string) error {
	return c.store.Delete(ctx, threadID)
}

// Store returns the checkpoint store backing this graph.
func (c *CompiledGraph[S]) Store() store.Store[S] {
	return c.store
}

// Name returns the graph's name as set with WithName.
func (c *CompiledGraph[S]) Name() string {
	return c.name
}

// observeFunc receives each node completion and its partial update during
// execution.
type observeFunc[S any] func(nodeID string, step int, update S)

// runThreadSteps loads the thread's checkpoint, executes the graph, and
// persists the result. It returns the final state, the number of steps
// executed, and any error. On a checkpoint save failure the final state
// is returned alongside the error.
func (c *CompiledGraph[S]) runThreadSteps(ctx context.Context, threadID string, input S, observe observeFunc[S]) (S, int, error) {
	var zero S

	c.metrics.InvocationStarted(c.name)
	defer c.metrics.InvocationFinished(c.name)

	prev, _, err := c.store.Load(ctx, threadID)
	if err != nil {
		c.metrics.RecordInvocation(c.name, "error")
		return zero, 0, &EngineError{
			Message: "failed to load checkpoint: " + err.Error(),
			Code:    CodeStoreLoad,
			Cause:   err,
		}
	}

	state := c.reducer(prev, input)

	final, steps, err := c.execute(ctx, threadID, state, observe)
	if err != nil {
		c.emitter.Emit(emit.Event{
			ThreadID: threadID,
			Step:     steps,
			Msg:      "invocation_failed",
			Meta: map[string]interface{}{
				"graph": c.name,
				"error": err.Error(),
			},
		})
		c.metrics.RecordInvocation(c.name, "error")
		return zero, steps, err
	}

	version, err := c.store.Save(ctx, threadID, final)
	if err != nil {
		c.metrics.RecordCheckpointSave(c.backendName(), "error")
		c.metrics.RecordInvocation(c.name, "error")
		// The invocation itself succeeded: hand the caller the final
		// state along with the save failure.
		return final, steps, &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    CodeStoreSave,
			Cause:   err,
		}
	}

	c.metrics.RecordCheckpointSave(c.backendName(), "success")
	c.emitter.Emit(emit.Event{
		ThreadID: threadID,
		Step:     steps,
		Msg:      "checkpoint_saved",
		Meta: map[string]interface{}{
			"graph":   c.name,
			"version": version,
			"backend": c.backendName(),
		},
	})

	c.emitter.Emit(emit.Event{
		ThreadID: threadID,
		Step:     steps,
		Msg:      "invocation_completed",
		Meta: map[string]interface{}{
			"graph": c.name,
			"steps": steps,
		},
	})
	c.metrics.RecordInvocation(c.name, "success")

	return final, steps, nil
}

// execute runs the node loop on state until a route reaches End.
//
// It returns the final merged state and the number of node executions.
// The loop never touches the store; persistence is the caller's concern.
func (c *CompiledGraph[S]) execute(ctx context.Context, threadID string, state S, observe observeFunc[S]) (S, int, error) {
	var zero S

	current := c.entry
	step := 0

	for {
		step++

		if step > c.maxSteps {
			return zero, step - 1, &EngineError{
				Message: "invocation exceeded step limit",
				Code:    CodeMaxSteps,
			}
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return zero, step - 1, ctx.Err()
		default:
		}

		// Compile validation guarantees every route endpoint is
		// registered, so the lookup cannot miss.
		node := c.nodes[current]

		start := time.Now()
		delta, err := node.Run(ctx, state)
		latency := time.Since(start)

		if err != nil {
			c.metrics.RecordNodeLatency(c.name, current, latency, "error")
			c.emitter.Emit(emit.Event{
				ThreadID: threadID,
				Step:     step,
				NodeID:   current,
				Msg:      "node_failed",
				Meta: map[string]interface{}{
					"graph": c.name,
					"error": err.Error(),
				},
			})
			return zero, step, &NodeError{
				Message: err.Error(),
				Code:    CodeNodeFailed,
				NodeID:  current,
				Cause:   err,
			}
		}

		state = c.reducer(state, delta)

		c.metrics.RecordNodeLatency(c.name, current, latency, "success")
		c.emitter.Emit(emit.Event{
			ThreadID: threadID,
			Step:     step,
			NodeID:   current,
			Msg:      "node_completed",
			Meta: map[string]interface{}{
				"graph":       c.name,
				"duration_ms": latency.Milliseconds(),
			},
		})

		if observe != nil {
			observe(current, step, delta)
		}

		// Route on the merged state.
		if e, ok := c.edges[current]; ok {
			if e.to == End {
				return state, step, nil
			}
			current = e.to
			continue
		}

		// Compile guarantees every node has exactly one outgoing route,
		// so a node without a static edge has a conditional one.
		ce := c.conditionals[current]
		label := ce.router(state)
		dest, ok := ce.destinations[label]
		if !ok {
			return zero, step, &EngineError{
				Message: "node " + current + " routed to undeclared label: " + label,
				Code:    CodeUndeclaredDestination,
			}
		}
		if dest == End {
			return state, step, nil
		}
		current = dest
	}
}

// backendName reports the store's backend label for metrics and events.
func (c *CompiledGraph[S]) backendName() string {
	type backender interface{ Backend() string }
	if b, ok := c.store.(backender); ok {
		return b.Backend()
	}
	return "unknown"
}
