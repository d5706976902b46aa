package graph

import (
	"context"
	"errors"
	"testing"
)

// TestState is a test state type used across graph tests.
type TestState struct {
	Value   string
	Counter int
}

// reduceTestState merges non-zero delta fields over prev. Counter
// accumulates so loops are observable in tests.
func reduceTestState(prev, delta TestState) TestState {
	if delta.Value != "" {
		prev.Value = delta.Value
	}
	prev.Counter += delta.Counter
	return prev
}

// TestNodeInterface verifies that Node interface can be implemented.
func TestNodeInterface(t *testing.T) {
	ctx := context.Background()
	state := TestState{Value: "initial", Counter: 0}

	// Create a simple node implementation.
	node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
		return TestState{Value: "updated", Counter: s.Counter + 1}, nil
	})

	// Verify node can be called.
	delta, err := node.Run(ctx, state)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if delta.Value != "updated" {
		t.Errorf("expected delta.Value = 'updated', got %q", delta.Value)
	}
	if delta.Counter != 1 {
		t.Errorf("expected delta.Counter = 1, got %d", delta.Counter)
	}
}

// TestNodeWithContext verifies nodes can access context.
func TestNodeWithContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "test-key"

	ctx := context.WithValue(context.Background(), key, "test-value")
	state := TestState{Value: "initial"}

	node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
		val := ctx.Value(key)
		if val == nil {
			return TestState{}, &NodeError{Message: "context value missing"}
		}
		return TestState{Value: val.(string)}, nil
	})

	delta, err := node.Run(ctx, state)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if delta.Value != "test-value" {
		t.Errorf("expected delta.Value = 'test-value', got %q", delta.Value)
	}
}

// TestNodeError verifies nodes can return structured errors.
func TestNodeError(t *testing.T) {
	ctx := context.Background()
	state := TestState{}

	node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
		return TestState{}, &NodeError{Message: "test error", Code: "TEST_ERROR"}
	})

	_, err := node.Run(ctx, state)

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("expected *NodeError, got %T", err)
	}
	if nodeErr.Message != "test error" {
		t.Errorf("expected Message = 'test error', got %q", nodeErr.Message)
	}
	if nodeErr.Code != "TEST_ERROR" {
		t.Errorf("expected Code = 'TEST_ERROR', got %q", nodeErr.Code)
	}
}

// TestNodeError_Formatting verifies NodeError message rendering and unwrapping.
func TestNodeError_Formatting(t *testing.T) {
	t.Run("includes node ID when set", func(t *testing.T) {
		err := &NodeError{Message: "boom", NodeID: "validator"}
		if err.Error() != "node validator: boom" {
			t.Errorf("unexpected error string: %q", err.Error())
		}
	})

	t.Run("message only without node ID", func(t *testing.T) {
		err := &NodeError{Message: "boom"}
		if err.Error() != "boom" {
			t.Errorf("unexpected error string: %q", err.Error())
		}
	})

	t.Run("unwraps cause", func(t *testing.T) {
		cause := errors.New("underlying failure")
		err := &NodeError{Message: "wrapped", Cause: cause}

		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to match the cause")
		}
	})
}

// TestNodeFunc_Wrapper verifies the NodeFunc functional adapter.
func TestNodeFunc_Wrapper(t *testing.T) {
	t.Run("NodeFunc implements Node interface", func(t *testing.T) {
		var _ Node[TestState] = NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{}, nil
		})
	})

	t.Run("NodeFunc executes function", func(t *testing.T) {
		executed := false
		node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			executed = true
			return TestState{Value: s.Value + "-processed"}, nil
		})

		ctx := context.Background()
		delta, err := node.Run(ctx, TestState{Value: "input"})

		if !executed {
			t.Error("NodeFunc should have executed the function")
		}
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if delta.Value != "input-processed" {
			t.Errorf("expected delta.Value = 'input-processed', got %q", delta.Value)
		}
	})

	t.Run("NodeFunc can return errors", func(t *testing.T) {
		node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{}, &NodeError{Message: "func error"}
		})

		_, err := node.Run(context.Background(), TestState{})
		if err == nil {
			t.Fatal("expected error from NodeFunc")
		}
	})

	t.Run("zero delta is a valid no-changes update", func(t *testing.T) {
		node := NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{}, nil
		})

		delta, err := node.Run(context.Background(), TestState{Value: "anything"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if delta != (TestState{}) {
			t.Errorf("expected zero delta, got %+v", delta)
		}
	})
}
