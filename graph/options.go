package graph

import (
	"github.com/agentgraph-go/agentgraph/graph/emit"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// DefaultMaxSteps is the step limit applied when WithMaxSteps is not given.
//
// A step is one node execution. The limit exists to turn accidental
// routing cycles (A → B → A with no exit condition) into a clean
// MAX_STEPS error instead of an unbounded run.
const DefaultMaxSteps = 25

// CompileOption is a functional option for configuring a CompiledGraph.
//
// Functional options provide a clean, extensible API for compilation:
//   - Chainable: g.Compile(WithStore[S](st), WithMaxSteps[S](50))
//   - Self-documenting: option names clearly describe their purpose.
//   - Optional: only specify the configuration you need.
//
// Options that take a typed argument (WithStore) infer S from it; the
// rest need explicit instantiation at the call site:
//
//	compiled, err := g.Compile(
//	    graph.WithStore(st),                  // S inferred from st
//	    graph.WithMaxSteps[MyState](50),      // S explicit
//	)
type CompileOption[S any] func(*compileConfig[S]) error

// compileConfig collects options before they are applied to a CompiledGraph.
// This indirection allows validation and composition of options.
type compileConfig[S any] struct {
	store    store.Store[S]
	emitter  emit.Emitter
	metrics  *Metrics
	maxSteps int
	name     string
}

// WithStore sets the checkpoint store used to load and persist thread
// state.
//
// Default: a fresh NewMemStore[S]() private to the compiled graph.
// The default keeps single-process usage zero-config, but state is
// volatile: every restart forgets all threads. Supply a SQLite, MySQL,
// PostgreSQL, or Redis store for durability.
//
// Example:
//
//	st, err := store.NewSQLiteStore[MyState]("checkpoints.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	compiled, err := g.Compile(graph.WithStore(st))
func WithStore[S any](st store.Store[S]) CompileOption[S] {
	return func(cfg *compileConfig[S]) error {
		if st == nil {
			return &EngineError{
				Message: "store must not be nil",
				Code:    CodeInvalidOption,
			}
		}
		cfg.store = st
		return nil
	}
}

// WithEmitter sets the emitter that receives execution progress events
// (node completions, terminations, checkpoint saves).
//
// Default: emit.NewNullEmitter() (events are discarded).
//
// Example:
//
//	compiled, err := g.Compile(
//	    graph.WithStore(st),
//	    graph.WithEmitter[MyState](emit.NewLogEmitter(os.Stderr, false)),
//	)
func WithEmitter[S any](e emit.Emitter) CompileOption[S] {
	return func(cfg *compileConfig[S]) error {
		if e == nil {
			return &EngineError{
				Message: "emitter must not be nil",
				Code:    CodeInvalidOption,
			}
		}
		cfg.emitter = e
		return nil
	}
}

// WithMaxSteps limits the number of node executions per invocation.
//
// Default: DefaultMaxSteps (25).
//
// Routing loops (supervisor → agent → supervisor) are fully supported;
// the limit exists to stop runs whose exit condition never fires. When
// the limit is reached, the invocation fails with code "MAX_STEPS" and
// nothing is persisted.
//
// Recommended values:
//   - Linear pipelines (3-5 nodes): the default is plenty
//   - Supervisor loops: nodes per round × expected rounds, plus slack
//
// Example:
//
//	compiled, err := g.Compile(
//	    graph.WithStore(st),
//	    graph.WithMaxSteps[MyState](50),
//	)
func WithMaxSteps[S any](n int) CompileOption[S] {
	return func(cfg *compileConfig[S]) error {
		if n <= 0 {
			return &EngineError{
				Message: "max steps must be positive",
				Code:    CodeInvalidOption,
			}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Recorded during execution:
//   - agentgraph_invocations_total: completed invocations by status
//   - agentgraph_node_latency_ms: node execution duration histogram
//   - agentgraph_checkpoint_saves_total: checkpoint writes by backend
//   - agentgraph_active_invocations: currently running invocations
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	compiled, err := g.Compile(
//	    graph.WithStore(st),
//	    graph.WithMetrics[MyState](metrics),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics[S any](m *Metrics) CompileOption[S] {
	return func(cfg *compileConfig[S]) error {
		if m == nil {
			return &EngineError{
				Message: "metrics must not be nil",
				Code:    CodeInvalidOption,
			}
		}
		cfg.metrics = m
		return nil
	}
}

// WithName sets the graph name used in emitted events and metric labels.
//
// Default: "graph". Give sub-graphs distinct names so their metrics and
// events are attributable when composed into a parent graph.
func WithName[S any](name string) CompileOption[S] {
	return func(cfg *compileConfig[S]) error {
		if name == "" {
			return &EngineError{
				Message: "name must not be empty",
				Code:    CodeInvalidOption,
			}
		}
		cfg.name = name
		return nil
	}
}
