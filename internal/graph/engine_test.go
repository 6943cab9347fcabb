package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/logger"
	pkgerrors "github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/store"
	"github.com/scoutline/scoutline-backend/internal/types"
)

func recordStage(order *[]string, name string) StageFunc {
	return func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		*order = append(*order, name)
		return types.StateUpdate{Messages: []string{name}}, nil
	}
}

func buildTestGraph(order *[]string) *Graph {
	g := New()
	g.AddNode("entry", recordStage(order, "entry"))
	g.AddNode("a", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		return types.StateUpdate{FinancialData: map[string]types.Document{"u1": {Title: "a"}}}, nil
	})
	g.AddNode("b", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		return types.StateUpdate{FinancialData: map[string]types.Document{"u1": {Title: "b"}, "u2": {Title: "b2"}}}, nil
	})
	g.AddNode("collector", recordStage(order, "collector"))
	g.AddNode("final", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		*order = append(*order, "final")
		return types.StateUpdate{Report: types.StrPtr("done")}, nil
	})
	g.SetEntry("entry")
	g.AddFanOut("entry", []string{"a", "b"}, "collector")
	g.AddEdge("collector", "final")
	return g
}

func TestRunFullWalk(t *testing.T) {
	var order []string
	g := buildTestGraph(&order)
	eng, err := NewEngine(g, store.NewMemoryCheckpointStore(), nil, logger.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	state := &types.ResearchState{Company: "Acme"}
	res, err := eng.Run(context.Background(), uuid.New(), state, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Interrupt != nil {
		t.Fatalf("unexpected interrupt: %+v", res.Interrupt)
	}
	if res.State.Report != "done" {
		t.Fatalf("report = %q, want done", res.State.Report)
	}
	want := "entry,collector,final"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("sequential order = %s, want %s", got, want)
	}
}

func TestRunFanOutMergeIsDeclaredOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		var order []string
		g := buildTestGraph(&order)
		eng, err := NewEngine(g, nil, nil, logger.NewNop(), 0)
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		res, err := eng.Run(context.Background(), uuid.New(), &types.ResearchState{Company: "Acme"}, RunOptions{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		// "b" is declared after "a", so its value for the shared key wins
		// no matter which goroutine finished first.
		if got := res.State.FinancialData["u1"].Title; got != "b" {
			t.Fatalf("run %d: merged u1 title = %q, want b", i, got)
		}
		if got := res.State.FinancialData["u2"].Title; got != "b2" {
			t.Fatalf("run %d: merged u2 title = %q, want b2", i, got)
		}
	}
}

func TestRunSuspendsOnInterrupt(t *testing.T) {
	var order []string
	g := New()
	g.AddNode("entry", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		order = append(order, "entry")
		return types.StateUpdate{
			Interrupt: &types.Interrupt{
				Kind:    types.InterruptKindMissingData,
				Message: "need location",
				Data:    map[string]any{"missing_fields": []string{"hq_location"}},
			},
			SetInterrupt: true,
		}, nil
	})
	g.AddNode("next", recordStage(&order, "next"))
	g.SetEntry("entry")
	g.AddEdge("entry", "next")

	ckpts := store.NewMemoryCheckpointStore()
	eng, err := NewEngine(g, ckpts, nil, logger.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	threadID := uuid.New()
	res, err := eng.Run(context.Background(), threadID, &types.ResearchState{Company: "Acme"}, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Interrupt == nil || res.Interrupt.Kind != types.InterruptKindMissingData {
		t.Fatalf("expected missing_data interrupt, got %+v", res.Interrupt)
	}
	for _, n := range order {
		if n == "next" {
			t.Fatal("stage after interrupt must not run")
		}
	}

	// The suspended state, interrupt included, must be recoverable.
	saved, err := eng.LatestState(context.Background(), threadID)
	if err != nil {
		t.Fatalf("LatestState: %v", err)
	}
	if saved == nil || saved.Interrupt == nil || saved.Interrupt.Message != "need location" {
		t.Fatalf("checkpointed state lost the interrupt: %+v", saved)
	}
}

func TestRunResumeSkipsEntry(t *testing.T) {
	var order []string
	g := buildTestGraph(&order)
	eng, err := NewEngine(g, nil, nil, logger.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := eng.Run(context.Background(), uuid.New(), &types.ResearchState{Company: "Acme"}, RunOptions{Resume: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, n := range order {
		if n == "entry" {
			t.Fatal("resume must not re-run the entry stage")
		}
	}
	if res.State.Report != "done" {
		t.Fatalf("resumed run did not reach the terminal stage: report = %q", res.State.Report)
	}
}

func TestRunRecursionLimit(t *testing.T) {
	g := New()
	var calls int
	g.AddNode("loop", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		calls++
		return types.StateUpdate{}, nil
	})
	g.SetEntry("loop")
	g.AddEdge("loop", "loop")

	eng, err := NewEngine(g, nil, nil, logger.NewNop(), 5)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	_, err = eng.Run(context.Background(), uuid.New(), &types.ResearchState{}, RunOptions{})
	if !errors.Is(err, pkgerrors.ErrRecursionLimitExceeded) {
		t.Fatalf("err = %v, want ErrRecursionLimitExceeded", err)
	}
	if calls != 5 {
		t.Fatalf("stage ran %d times, want 5", calls)
	}
}

func TestRunStageErrorWrapped(t *testing.T) {
	g := New()
	g.AddNode("entry", func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		return types.StateUpdate{}, fmt.Errorf("upstream unavailable")
	})
	g.SetEntry("entry")

	eng, err := NewEngine(g, nil, nil, logger.NewNop(), 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	_, err = eng.Run(context.Background(), uuid.New(), &types.ResearchState{}, RunOptions{})
	var se *pkgerrors.StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if se.Stage != "entry" {
		t.Fatalf("failed stage = %q, want entry", se.Stage)
	}
}

func TestNewEngineRejectsInvalidGraph(t *testing.T) {
	g := New()
	g.SetEntry("missing")
	if _, err := NewEngine(g, nil, nil, logger.NewNop(), 0); err == nil {
		t.Fatal("expected validation error for unregistered entry")
	}
}
