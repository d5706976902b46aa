package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures all events and provides query capabilities for
// execution history analysis. Events are organized by threadID for
// efficient retrieval and filtering.
//
// Features:
//   - Thread-safe concurrent access
//   - Query by threadID with optional filtering
//   - Filter by nodeID, message, step range
//   - Clear events by threadID or all events
//
// Warning: This emitter stores all events in memory. For deployments
// with long-running threads or high event volume, consider a persistent
// sink or periodic cleanup via Clear.
//
// Example usage:
//
//	// Create buffered emitter for testing
//	emitter := emit.NewBufferedEmitter()
//	compiled, err := g.Compile(graph.WithEmitter[MyState](emitter))
//
//	// Run an invocation
//	compiled.Invoke(ctx, "thread-001", input)
//
//	// Query execution history
//	allEvents := emitter.GetHistory("thread-001")
//	errorEvents := emitter.GetHistoryWithFilter("thread-001", emit.HistoryFilter{Msg: "error"})
//
//	// Clean up old threads
//	emitter.Clear("thread-001")
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // threadID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic (all conditions must match).
//
// Example usage:
//
//	// Get all errors from a specific node
//	filter := emit.HistoryFilter{
//		NodeID: "validator",
//		Msg:    "error",
//	}
//	errors := emitter.GetHistoryWithFilter("thread-001", filter)
//
//	// Get events from steps 5-10
//	minStep, maxStep := 5, 10
//	filter := emit.HistoryFilter{
//		MinStep: &minStep,
//		MaxStep: &maxStep,
//	}
//	stepEvents := emitter.GetHistoryWithFilter("thread-001", filter)
type HistoryFilter struct {
	NodeID  string // Filter by node ID (empty = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinStep *int   // Minimum step number (nil = no filter)
	MaxStep *int   // Maximum step number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
//
// Returns a BufferedEmitter that stores all events in memory and provides
// query capabilities. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
//
// Events are organized by threadID for efficient retrieval. This method
// is thread-safe and can be called concurrently from multiple goroutines.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// GetHistory retrieves all events for a specific threadID.
//
// Returns events in the order they were emitted. Returns an empty slice
// if no events exist for the given threadID.
//
// This method is thread-safe and returns a copy of the events to prevent
// concurrent modification issues.
func (b *BufferedEmitter) GetHistory(threadID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	if events == nil {
		return []Event{} // Return empty slice instead of nil
	}

	// Return a copy to prevent external modification
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter retrieves filtered events for a specific threadID.
//
// Applies the provided filter criteria to select matching events. All
// filter conditions must match for an event to be included (AND logic).
//
// Returns events in the order they were emitted. Returns an empty slice
// if no events match the filter.
func (b *BufferedEmitter) GetHistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	if events == nil {
		return []Event{}
	}

	// If filter is empty, return all events
	if filter.NodeID == "" && filter.Msg == "" && filter.MinStep == nil && filter.MaxStep == nil {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	// Apply filters
	var result []Event
	for _, event := range events {
		if !b.matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}

	if result == nil {
		return []Event{} // Return empty slice instead of nil
	}
	return result
}

// matchesFilter checks if an event matches the filter criteria.
func (b *BufferedEmitter) matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}

	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}

	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}

	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}

	return true
}

// Clear removes stored events.
//
// If threadID is non-empty, clears only events for that specific thread.
// If threadID is empty, clears all stored events across all threads.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if threadID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, threadID)
	}
}
