package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/agentgraph-go/agentgraph/graph/emit"
	"github.com/agentgraph-go/agentgraph/graph/model"
	"github.com/agentgraph-go/agentgraph/graph/store"
)

// linearGraph builds entry → work → End where work appends its name to
// Value and bumps Counter.
func linearGraph(t *testing.T, st store.Store[TestState]) *CompiledGraph[TestState] {
	t.Helper()

	g := NewStateGraph(reduceTestState)
	if err := g.AddNode("work", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
		return TestState{Value: s.Value + "+work", Counter: 1}, nil
	})); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if err := g.AddEdge(Start, "work"); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.AddEdge("work", End); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	opts := []CompileOption[TestState]{}
	if st != nil {
		opts = append(opts, WithStore(st))
	}
	compiled, err := g.Compile(opts...)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return compiled
}

func TestCompiledGraph_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("runs to completion and persists", func(t *testing.T) {
		st := store.NewMemStore[TestState]()
		compiled := linearGraph(t, st)

		final, err := compiled.Invoke(ctx, "t1", TestState{Value: "in"})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if final.Value != "in+work" {
			t.Errorf("Value = %q, want %q", final.Value, "in+work")
		}
		if final.Counter != 1 {
			t.Errorf("Counter = %d, want 1", final.Counter)
		}

		cp, err := st.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cp.Version != 1 {
			t.Errorf("checkpoint version = %d, want 1", cp.Version)
		}
		if cp.State != final {
			t.Errorf("persisted state = %+v, want %+v", cp.State, final)
		}
	})

	t.Run("resumes from prior checkpoint", func(t *testing.T) {
		compiled := linearGraph(t, nil)

		first, err := compiled.Invoke(ctx, "t1", TestState{Value: "a"})
		if err != nil {
			t.Fatalf("first Invoke failed: %v", err)
		}
		second, err := compiled.Invoke(ctx, "t1", TestState{})
		if err != nil {
			t.Fatalf("second Invoke failed: %v", err)
		}

		if second.Value != first.Value+"+work" {
			t.Errorf("Value = %q, want %q", second.Value, first.Value+"+work")
		}
		if second.Counter != 2 {
			t.Errorf("Counter = %d, want 2 (accumulated across turns)", second.Counter)
		}
	})

	t.Run("threads are isolated", func(t *testing.T) {
		compiled := linearGraph(t, nil)

		a, err := compiled.Invoke(ctx, "alpha", TestState{Value: "a"})
		if err != nil {
			t.Fatalf("Invoke alpha failed: %v", err)
		}
		b, err := compiled.Invoke(ctx, "beta", TestState{Value: "b"})
		if err != nil {
			t.Fatalf("Invoke beta failed: %v", err)
		}

		if a.Value != "a+work" || b.Value != "b+work" {
			t.Errorf("cross-thread contamination: alpha=%q beta=%q", a.Value, b.Value)
		}
		if a.Counter != 1 || b.Counter != 1 {
			t.Errorf("counters leaked across threads: alpha=%d beta=%d", a.Counter, b.Counter)
		}

		cpA, err := compiled.State(ctx, "alpha")
		if err != nil {
			t.Fatalf("State alpha failed: %v", err)
		}
		if cpA.State.Value != "a+work" {
			t.Errorf("alpha checkpoint = %q, want %q", cpA.State.Value, "a+work")
		}
	})

	t.Run("routes on post-merge state", func(t *testing.T) {
		g := NewStateGraph(reduceTestState)
		// decide writes the value its own router will read.
		_ = g.AddNode("decide", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Value: "go-right"}, nil
		}))
		_ = g.AddNode("left", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Counter: -100}, nil
		}))
		_ = g.AddNode("right", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Counter: 100}, nil
		}))
		_ = g.AddEdge(Start, "decide")
		_ = g.AddConditionalEdge("decide", func(s TestState) string {
			return strings.TrimPrefix(s.Value, "go-")
		}, map[string]string{"left": "left", "right": "right"})
		_ = g.AddEdge("left", End)
		_ = g.AddEdge("right", End)

		compiled, err := g.Compile()
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		final, err := compiled.Invoke(ctx, "t1", TestState{})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if final.Counter != 100 {
			t.Errorf("Counter = %d, want 100 (right branch)", final.Counter)
		}
	})

	t.Run("undeclared destination fails without persisting", func(t *testing.T) {
		st := store.NewMemStore[TestState]()

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("decide", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Value: "rogue"}, nil
		}))
		_ = g.AddNode("next", noopNode())
		_ = g.AddConditionalEdge("decide", func(s TestState) string {
			return s.Value // "rogue" is not declared below
		}, map[string]string{"next": "next", "done": End})
		_ = g.AddEdge(Start, "decide")
		_ = g.AddEdge("next", End)

		compiled, err := g.Compile(WithStore(st))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		// Seed a checkpoint so we can verify it survives the failure.
		if _, err := st.Save(ctx, "t1", TestState{Value: "seed"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		_, err = compiled.Invoke(ctx, "t1", TestState{})
		wantEngineError(t, err, CodeUndeclaredDestination)

		cp, err := st.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cp.Version != 1 || cp.State.Value != "seed" {
			t.Errorf("prior checkpoint disturbed: version=%d state=%+v", cp.Version, cp.State)
		}
	})

	t.Run("node failure fails without persisting", func(t *testing.T) {
		st := store.NewMemStore[TestState]()
		nodeErr := errors.New("collaborator unavailable")

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("boom", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{}, nodeErr
		}))
		_ = g.AddEdge(Start, "boom")
		_ = g.AddEdge("boom", End)

		compiled, err := g.Compile(WithStore(st))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		_, err = compiled.Invoke(ctx, "t1", TestState{Value: "in"})
		if err == nil {
			t.Fatal("expected node failure")
		}
		var ne *NodeError
		if !errors.As(err, &ne) {
			t.Fatalf("expected *NodeError, got %T: %v", err, err)
		}
		if ne.NodeID != "boom" || ne.Code != CodeNodeFailed {
			t.Errorf("NodeError = %+v, want NodeID=boom Code=%s", ne, CodeNodeFailed)
		}
		if !errors.Is(err, nodeErr) {
			t.Error("expected cause to unwrap to the node's error")
		}

		if _, err := st.Get(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected no checkpoint after failure, got %v", err)
		}
	})

	t.Run("step limit halts routing loops", func(t *testing.T) {
		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("spin", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Counter: 1}, nil
		}))
		_ = g.AddEdge(Start, "spin")
		_ = g.AddConditionalEdge("spin", func(s TestState) string {
			return "again" // exit label declared but never chosen
		}, map[string]string{"again": "spin", "done": End})

		compiled, err := g.Compile(WithMaxSteps[TestState](5))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		_, err = compiled.Invoke(ctx, "t1", TestState{})
		wantEngineError(t, err, CodeMaxSteps)
	})

	t.Run("cancelled context aborts without persisting", func(t *testing.T) {
		st := store.NewMemStore[TestState]()
		compiled := linearGraph(t, st)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := compiled.Invoke(cancelled, "t1", TestState{Value: "in"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if _, err := st.Get(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected no checkpoint after cancellation, got %v", err)
		}
	})
}

// failingStore wraps a MemStore and fails selected operations.
type failingStore struct {
	*store.MemStore[TestState]
	failLoad bool
	failSave bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Load(ctx context.Context, threadID string) (TestState, int, error) {
	if f.failLoad {
		return TestState{}, 0, errStoreDown
	}
	return f.MemStore.Load(ctx, threadID)
}

func (f *failingStore) Save(ctx context.Context, threadID string, state TestState) (int, error) {
	if f.failSave {
		return 0, errStoreDown
	}
	return f.MemStore.Save(ctx, threadID, state)
}

func TestCompiledGraph_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("load failure aborts before any node runs", func(t *testing.T) {
		ran := false
		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("work", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			ran = true
			return TestState{}, nil
		}))
		_ = g.AddEdge(Start, "work")
		_ = g.AddEdge("work", End)

		fs := &failingStore{MemStore: store.NewMemStore[TestState](), failLoad: true}
		compiled, err := g.Compile(WithStore[TestState](fs))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		_, err = compiled.Invoke(ctx, "t1", TestState{})
		engErr := wantEngineError(t, err, CodeStoreLoad)
		if !errors.Is(engErr, errStoreDown) {
			t.Error("expected cause to unwrap to the store error")
		}
		if ran {
			t.Error("node ran despite load failure")
		}
	})

	t.Run("save failure returns the computed state with a distinct error", func(t *testing.T) {
		fs := &failingStore{MemStore: store.NewMemStore[TestState](), failSave: true}

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("work", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Value: "computed"}, nil
		}))
		_ = g.AddEdge(Start, "work")
		_ = g.AddEdge("work", End)

		compiled, err := g.Compile(WithStore[TestState](fs))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		final, err := compiled.Invoke(ctx, "t1", TestState{})
		wantEngineError(t, err, CodeStoreSave)
		if final.Value != "computed" {
			t.Errorf("final state lost on save failure: %+v", final)
		}
	})
}

func TestCompiledGraph_Stream(t *testing.T) {
	ctx := context.Background()

	t.Run("emits each node's partial update then a terminal End event", func(t *testing.T) {
		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("first", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Counter: 1}, nil
		}))
		_ = g.AddNode("second", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Counter: 10}, nil
		}))
		_ = g.AddEdge(Start, "first")
		_ = g.AddEdge("first", "second")
		_ = g.AddEdge("second", End)

		compiled, err := g.Compile()
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		var events []StreamEvent[TestState]
		for ev := range compiled.Stream(ctx, "t1", TestState{}) {
			events = append(events, ev)
		}

		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		if events[0].Node != "first" || events[0].Step != 1 || events[0].Update.Counter != 1 {
			t.Errorf("event 0 = %+v", events[0])
		}
		// The second event must carry that node's own update, not the
		// accumulated state.
		if events[1].Node != "second" || events[1].Step != 2 || events[1].Update.Counter != 10 {
			t.Errorf("event 1 = %+v, want the node's update (Counter=10)", events[1])
		}
		if events[2].Node != End || events[2].Err != nil || events[2].Update.Counter != 11 {
			t.Errorf("terminal event = %+v, want the final merged state", events[2])
		}
	})

	t.Run("persists only at termination", func(t *testing.T) {
		st := store.NewMemStore[TestState]()

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("check", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			// Mid-invocation the thread must have no checkpoint yet.
			if _, err := st.Get(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
				return TestState{}, fmt.Errorf("premature persistence: %v", err)
			}
			return TestState{Counter: 1}, nil
		}))
		_ = g.AddEdge(Start, "check")
		_ = g.AddEdge("check", End)

		compiled, err := g.Compile(WithStore(st))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		var last StreamEvent[TestState]
		for ev := range compiled.Stream(ctx, "t1", TestState{}) {
			last = ev
		}
		if last.Err != nil {
			t.Fatalf("stream failed: %v", last.Err)
		}

		cp, err := st.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if cp.Version != 1 {
			t.Errorf("version = %d, want 1", cp.Version)
		}
	})

	t.Run("failure surfaces on the terminal event and persists nothing", func(t *testing.T) {
		st := store.NewMemStore[TestState]()

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("boom", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{}, errors.New("boom")
		}))
		_ = g.AddEdge(Start, "boom")
		_ = g.AddEdge("boom", End)

		compiled, err := g.Compile(WithStore(st))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		var last StreamEvent[TestState]
		for ev := range compiled.Stream(ctx, "t1", TestState{}) {
			last = ev
		}
		if last.Node != End || last.Err == nil {
			t.Fatalf("terminal event = %+v, want End with error", last)
		}
		if _, err := st.Get(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected no checkpoint after failure, got %v", err)
		}
	})
}

func TestCompiledGraph_StateOps(t *testing.T) {
	ctx := context.Background()

	t.Run("State on an unseen thread returns ErrNotFound", func(t *testing.T) {
		compiled := linearGraph(t, nil)
		if _, err := compiled.State(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteState resets the thread", func(t *testing.T) {
		compiled := linearGraph(t, nil)

		if _, err := compiled.Invoke(ctx, "t1", TestState{Value: "a"}); err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if err := compiled.DeleteState(ctx, "t1"); err != nil {
			t.Fatalf("DeleteState failed: %v", err)
		}
		if _, err := compiled.State(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}

		// The thread starts over from the zero state.
		fresh, err := compiled.Invoke(ctx, "t1", TestState{Value: "b"})
		if err != nil {
			t.Fatalf("Invoke after delete failed: %v", err)
		}
		if fresh.Counter != 1 || fresh.Value != "b+work" {
			t.Errorf("thread not fresh after delete: %+v", fresh)
		}
	})

	t.Run("compiling without a store binds a private MemStore", func(t *testing.T) {
		compiled := linearGraph(t, nil)
		if compiled.Store() == nil {
			t.Fatal("Store() returned nil")
		}
		other := linearGraph(t, nil)
		if compiled.Store() == other.Store() {
			t.Error("default stores must be private per compiled graph")
		}
	})
}

// echoGraph mirrors the minimal conversation pipeline: query echoes the
// latest user message back as an assistant reply.
func echoGraph(t *testing.T) *CompiledGraph[MessagesState] {
	t.Helper()

	g := NewStateGraph(ReduceMessagesState)
	if err := g.AddNode("query", NodeFunc[MessagesState](func(ctx context.Context, s MessagesState) (MessagesState, error) {
		last := s.Messages[len(s.Messages)-1]
		return MessagesState{Messages: []model.Message{
			{ID: last.ID + "-reply", Role: model.RoleAssistant, Content: last.Content + "-reply"},
		}}, nil
	})); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if err := g.AddEdge(Start, "query"); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.AddEdge("query", End); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	compiled, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return compiled
}

func TestCompiledGraph_ConversationHistory(t *testing.T) {
	ctx := context.Background()
	compiled := echoGraph(t)

	first, err := compiled.Invoke(ctx, "a", MessagesState{Messages: []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "hi"},
	}})
	if err != nil {
		t.Fatalf("first Invoke failed: %v", err)
	}
	if len(first.Messages) != 2 {
		t.Fatalf("after first turn got %d messages, want 2", len(first.Messages))
	}
	if first.Messages[0].Content != "hi" || first.Messages[1].Content != "hi-reply" {
		t.Errorf("first turn = %v", first.Messages)
	}

	second, err := compiled.Invoke(ctx, "a", MessagesState{Messages: []model.Message{
		{ID: "m2", Role: model.RoleUser, Content: "more"},
	}})
	if err != nil {
		t.Fatalf("second Invoke failed: %v", err)
	}
	if len(second.Messages) != 4 {
		t.Fatalf("after second turn got %d messages, want 4", len(second.Messages))
	}
	wantOrder := []string{"hi", "hi-reply", "more", "more-reply"}
	for i, want := range wantOrder {
		if second.Messages[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, second.Messages[i].Content, want)
		}
	}
}

func TestCompiledGraph_SubGraph(t *testing.T) {
	ctx := context.Background()

	// Specialist: a single-node graph that marks the state.
	specialist := func(t *testing.T) *CompiledGraph[TestState] {
		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("answer", NodeFunc[TestState](func(ctx context.Context, s TestState) (TestState, error) {
			return TestState{Value: s.Value + "+specialist", Counter: 1}, nil
		}))
		_ = g.AddEdge(Start, "answer")
		_ = g.AddEdge("answer", End)

		compiled, err := g.Compile(WithName[TestState]("specialist"))
		if err != nil {
			t.Fatalf("Compile specialist failed: %v", err)
		}
		return compiled
	}

	t.Run("compiled graph runs as a node", func(t *testing.T) {
		inner := specialist(t)

		parent := NewStateGraph(reduceTestState)
		if err := parent.AddNode("specialist", inner); err != nil {
			t.Fatalf("AddNode(sub-graph) failed: %v", err)
		}
		_ = parent.AddEdge(Start, "specialist")
		_ = parent.AddEdge("specialist", End)

		compiled, err := parent.Compile()
		if err != nil {
			t.Fatalf("Compile parent failed: %v", err)
		}

		final, err := compiled.Invoke(ctx, "t1", TestState{Value: "in"})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if final.Value != "in+specialist" {
			t.Errorf("Value = %q, want %q", final.Value, "in+specialist")
		}
	})

	t.Run("parent result equals running the sub-graph directly", func(t *testing.T) {
		inner := specialist(t)

		direct, err := inner.Run(ctx, TestState{Value: "in"})
		if err != nil {
			t.Fatalf("direct Run failed: %v", err)
		}

		parent := NewStateGraph(reduceTestState)
		_ = parent.AddNode("specialist", specialist(t))
		_ = parent.AddEdge(Start, "specialist")
		_ = parent.AddEdge("specialist", End)
		compiled, err := parent.Compile()
		if err != nil {
			t.Fatalf("Compile parent failed: %v", err)
		}

		viaParent, err := compiled.Invoke(ctx, "t1", TestState{Value: "in"})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}

		if viaParent.Value != direct.Value {
			t.Errorf("parent final %q != direct sub-graph final %q", viaParent.Value, direct.Value)
		}
	})

	t.Run("sub-graph does not touch the parent store", func(t *testing.T) {
		innerStore := store.NewMemStore[TestState]()

		g := NewStateGraph(reduceTestState)
		_ = g.AddNode("answer", noopNode())
		_ = g.AddEdge(Start, "answer")
		_ = g.AddEdge("answer", End)
		inner, err := g.Compile(WithStore(innerStore))
		if err != nil {
			t.Fatalf("Compile inner failed: %v", err)
		}

		parent := NewStateGraph(reduceTestState)
		_ = parent.AddNode("sub", inner)
		_ = parent.AddEdge(Start, "sub")
		_ = parent.AddEdge("sub", End)
		compiled, err := parent.Compile()
		if err != nil {
			t.Fatalf("Compile parent failed: %v", err)
		}

		if _, err := compiled.Invoke(ctx, "t1", TestState{}); err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}

		// Only the parent's store has a checkpoint.
		if _, err := innerStore.Get(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("sub-graph wrote to its own store during composition: %v", err)
		}
		if _, err := compiled.State(ctx, "t1"); err != nil {
			t.Errorf("parent checkpoint missing: %v", err)
		}
	})
}

func TestCompiledGraph_EmitsEvents(t *testing.T) {
	ctx := context.Background()

	buf := emit.NewBufferedEmitter()
	st := store.NewMemStore[TestState]()

	g := NewStateGraph(reduceTestState)
	_ = g.AddNode("work", noopNode())
	_ = g.AddEdge(Start, "work")
	_ = g.AddEdge("work", End)

	compiled, err := g.Compile(WithStore(st), WithEmitter[TestState](buf))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if _, err := compiled.Invoke(ctx, "t1", TestState{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	msgs := map[string]bool{}
	for _, ev := range buf.GetHistory("t1") {
		msgs[ev.Msg] = true
	}
	for _, want := range []string{"node_completed", "checkpoint_saved", "invocation_completed"} {
		if !msgs[want] {
			t.Errorf("missing %q event; got %v", want, msgs)
		}
	}
}
