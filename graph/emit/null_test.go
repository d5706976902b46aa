package emit

import (
	"testing"
)

// TestNullEmitter_NoOp verifies NullEmitter discards all events without errors.
func TestNullEmitter_NoOp(t *testing.T) {
	t.Run("emits events without error", func(t *testing.T) {
		emitter := NewNullEmitter()

		// Emit several events - should not panic or error.
		events := []Event{
			{ThreadID: "thread-001", Step: 1, NodeID: "node1", Msg: "node_completed"},
			{ThreadID: "thread-001", Step: 2, NodeID: "node2", Msg: "node_completed"},
			{ThreadID: "thread-001", Step: 3, NodeID: "node2", Msg: "node_failed", Meta: map[string]interface{}{"error": "test"}},
		}

		for _, event := range events {
			// Should not panic.
			emitter.Emit(event)
		}
	})

	t.Run("can emit with nil meta", func(t *testing.T) {
		emitter := NewNullEmitter()

		event := Event{
			ThreadID: "thread-001",
			Step:     1,
			NodeID:   "node1",
			Msg:      "test",
			Meta:     nil, // nil meta should be fine
		}

		// Should not panic.
		emitter.Emit(event)
	})
}

// TestNullEmitter_InterfaceContract verifies NullEmitter implements Emitter interface.
func TestNullEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewNullEmitter()
}
