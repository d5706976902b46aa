package graph

import "testing"

// TestReservedNames verifies the Start and End pseudo-node constants.
func TestReservedNames(t *testing.T) {
	if Start != "__start__" {
		t.Errorf("expected Start = '__start__', got %q", Start)
	}
	if End != "__end__" {
		t.Errorf("expected End = '__end__', got %q", End)
	}
	if Start == End {
		t.Error("Start and End must be distinct")
	}
}

// TestRouter_Type verifies Router[S] function type can be declared.
func TestRouter_Type(t *testing.T) {
	t.Run("router type can be declared", func(t *testing.T) {
		var r Router[TestState]

		r = func(s TestState) string {
			if s.Counter > 0 {
				return "positive"
			}
			return "nonpositive"
		}

		if got := r(TestState{Counter: 5}); got != "positive" {
			t.Errorf("expected 'positive', got %q", got)
		}
		if got := r(TestState{Counter: 0}); got != "nonpositive" {
			t.Errorf("expected 'nonpositive', got %q", got)
		}
	})

	t.Run("router can return End", func(t *testing.T) {
		var r Router[TestState] = func(s TestState) string {
			if s.Value == "done" {
				return End
			}
			return "work"
		}

		if got := r(TestState{Value: "done"}); got != End {
			t.Errorf("expected End, got %q", got)
		}
		if got := r(TestState{Value: "pending"}); got != "work" {
			t.Errorf("expected 'work', got %q", got)
		}
	})
}

// TestRouter_Patterns verifies common routing patterns.
func TestRouter_Patterns(t *testing.T) {
	t.Run("dispatch on routing field", func(t *testing.T) {
		router := func(s MessagesState) string {
			return s.Next
		}

		if got := router(MessagesState{Next: "business_agent"}); got != "business_agent" {
			t.Errorf("expected 'business_agent', got %q", got)
		}
		if got := router(MessagesState{Next: "database_agent"}); got != "database_agent" {
			t.Errorf("expected 'database_agent', got %q", got)
		}
	})

	t.Run("threshold routing", func(t *testing.T) {
		router := func(s TestState) string {
			if s.Counter >= 10 {
				return "approve"
			}
			return "review"
		}

		if got := router(TestState{Counter: 15}); got != "approve" {
			t.Errorf("expected 'approve', got %q", got)
		}
		if got := router(TestState{Counter: 5}); got != "review" {
			t.Errorf("expected 'review', got %q", got)
		}
	})

	t.Run("completion check", func(t *testing.T) {
		router := func(s TestState) string {
			if s.Value == "complete" {
				return "finish"
			}
			return "work"
		}

		// Looping pattern: keep working until complete, then finish.
		if got := router(TestState{Value: "in-progress"}); got != "work" {
			t.Errorf("expected 'work', got %q", got)
		}
		if got := router(TestState{Value: "complete"}); got != "finish" {
			t.Errorf("expected 'finish', got %q", got)
		}
	})
}
