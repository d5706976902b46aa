// Package emit provides observability event emission for graph execution.
//
// The engine emits structured events at key points during an invocation
// (node completion, routing, checkpoint persistence). Emitters receive
// these events and forward them to a sink: a log stream, an in-memory
// buffer, or an OpenTelemetry tracer.
package emit

// Emitter receives observability events during graph execution.
//
// Implementations must be safe for concurrent use: multiple invocations
// may emit events simultaneously from different goroutines.
//
// Emit should not block. Slow sinks should buffer or drop events rather
// than stall the execution loop.
type Emitter interface {
	// Emit sends an event to the emitter's sink.
	//
	// Implementations should handle events quickly and never panic.
	// Errors writing to the sink are swallowed; observability failures
	// must not affect graph execution.
	Emit(event Event)
}
