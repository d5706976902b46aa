package graph

import (
	"github.com/agentgraph-go/agentgraph/graph/model"
)

// Reducer merges a partial state update (delta) into the previous state and
// returns the merged result.
//
// Reducers define the per-field merge rules for a state type. They must be
// pure: no side effects, no mutation of prev or delta, and deterministic
// output for the same inputs. Merging the same delta twice must produce the
// same result as merging it once, so that a resumed thread can safely
// re-merge an update it has already seen.
//
// Type parameter S is the state type shared across the graph.
type Reducer[S any] func(prev, delta S) S

// MessagesState is the canonical conversation state for LLM agent graphs.
//
// It carries the accumulated conversation plus a routing field written by
// supervisor-style nodes and read by conditional edges. Use
// ReduceMessagesState as its reducer.
type MessagesState struct {
	// Messages is the ordered conversation history.
	Messages []model.Message `json:"messages"`

	// Next names the agent that should handle the current request.
	// Empty means no routing decision in this update.
	Next string `json:"next"`
}

// ReduceMessagesState is the canonical Reducer for MessagesState.
//
// Messages merge via AppendMessages (append with dedup by message ID).
// Next is last-write-wins: a non-empty delta value replaces the previous
// value, an empty delta value leaves it unchanged.
func ReduceMessagesState(prev, delta MessagesState) MessagesState {
	merged := MessagesState{
		Messages: AppendMessages(prev.Messages, delta.Messages),
		Next:     prev.Next,
	}
	if delta.Next != "" {
		merged.Next = delta.Next
	}
	return merged
}

// AppendMessages merges delta into prev, appending new entries in order.
//
// A delta entry whose ID already exists in prev replaces the existing entry
// in place instead of appending, so re-merging an update is idempotent.
// Entries with an empty ID have no identity and are always appended.
//
// Neither input slice is mutated; the result is a fresh slice.
func AppendMessages(prev, delta []model.Message) []model.Message {
	if len(delta) == 0 {
		// Still copy so callers can never alias the stored slice.
		return append([]model.Message(nil), prev...)
	}

	merged := make([]model.Message, len(prev), len(prev)+len(delta))
	copy(merged, prev)

	index := make(map[string]int, len(merged))
	for i, m := range merged {
		if m.ID != "" {
			index[m.ID] = i
		}
	}

	for _, m := range delta {
		if m.ID != "" {
			if i, ok := index[m.ID]; ok {
				merged[i] = m
				continue
			}
			index[m.ID] = len(merged)
		}
		merged = append(merged, m)
	}

	return merged
}
