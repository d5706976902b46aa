package emit

// Event represents an observability event emitted during graph execution.
//
// Events provide detailed insight into invocation behavior:
//   - Node completions and transitions
//   - Invocation termination
//   - Checkpoint persistence
//   - Errors
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Buffer in memory for inspection
type Event struct {
	// ThreadID identifies the conversation thread that emitted this event.
	ThreadID string

	// Step is the sequential node execution number within the
	// invocation (1-indexed). Zero for invocation-level events.
	Step int

	// NodeID identifies which node this event concerns.
	// Empty string for invocation-level events.
	NodeID string

	// Msg is a short machine-readable description of the event,
	// e.g. "node_completed", "checkpoint_saved", "invocation_completed".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "graph": Name of the graph that emitted the event
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "version": Checkpoint version after a save
	//   - "next": Destination chosen by routing
	Meta map[string]interface{}
}
