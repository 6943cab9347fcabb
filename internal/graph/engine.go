package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/store"
	"github.com/scoutline/scoutline-backend/internal/types"
)

const DefaultRecursionLimit = 50

// Engine executes a Graph against shared state: it checkpoints after every
// node or fan-out group, stops on interrupts and converts stage failures into
// StageError. It never touches job records; the caller owns status.
type Engine struct {
	graph   *Graph
	ckpts   store.CheckpointStore
	emitter EventEmitter
	log     *logger.Logger
	limit   int
	tracer  trace.Tracer
}

func NewEngine(g *Graph, ckpts store.CheckpointStore, emitter EventEmitter, baseLog *logger.Logger, recursionLimit int) (*Engine, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if recursionLimit <= 0 {
		recursionLimit = DefaultRecursionLimit
	}
	return &Engine{
		graph:   g,
		ckpts:   ckpts,
		emitter: emitter,
		log:     baseLog.With("component", "WorkflowEngine"),
		limit:   recursionLimit,
		tracer:  otel.Tracer("scoutline/engine"),
	}, nil
}

// RunOptions controls one execution run.
type RunOptions struct {
	// Resume skips the entry stage and re-enters along the conditional
	// edge's no-interrupt branch. The entry stage's side effects are not
	// safe to repeat.
	Resume bool
	// OnNodeComplete fires after each node or fan-out group has merged and
	// checkpointed.
	OnNodeComplete func(node string, state *types.ResearchState)
}

// RunResult is the outcome of a run that did not fail.
type RunResult struct {
	State *types.ResearchState
	// Interrupt is non-nil when the run suspended awaiting external input.
	Interrupt *types.Interrupt
}

// step is where the walk goes next: a single node or the fan-out group.
type step struct {
	node  string
	group bool
}

func (g *Graph) after(name string) (step, bool) {
	if name == g.fanOutFrom && len(g.fanOutMembers) > 0 {
		return step{group: true}, true
	}
	if to, ok := g.edges[name]; ok {
		return step{node: to}, true
	}
	return step{}, false
}

// Run walks the graph from the entry node (or from the entry node's
// continuation when resuming) until the terminal node completes, an
// interrupt suspends the run, or a stage fails.
func (e *Engine) Run(ctx context.Context, threadID uuid.UUID, state *types.ResearchState, opts RunOptions) (*RunResult, error) {
	log := e.log.With("thread_id", threadID)

	var visits atomic.Int64
	parentID := e.latestCheckpointID(ctx, threadID)
	sc := NewStageContext(threadID, log, e.emitter)

	var cur step
	if opts.Resume {
		nxt, ok := e.graph.after(e.graph.entry)
		if !ok {
			return &RunResult{State: state}, nil
		}
		cur = nxt
	} else {
		cur = step{node: e.graph.entry}
	}

	for {
		var nodeName string
		if cur.group {
			if err := e.runGroup(ctx, sc, state, &visits); err != nil {
				return nil, err
			}
			nodeName = "fan_out"
		} else {
			update, err := e.execStage(ctx, sc, cur.node, state, &visits)
			if err != nil {
				return nil, err
			}
			state.Apply(update)
			nodeName = cur.node
		}

		parentID = e.saveCheckpoint(ctx, threadID, parentID, nodeName, state)
		if opts.OnNodeComplete != nil {
			opts.OnNodeComplete(nodeName, state)
		}

		if state.Interrupt != nil {
			log.Info("Run suspended on interrupt", "node", nodeName, "kind", state.Interrupt.Kind)
			return &RunResult{State: state, Interrupt: state.Interrupt}, nil
		}

		var next step
		var ok bool
		if cur.group {
			next, ok = step{node: e.graph.fanInTo}, true
		} else {
			next, ok = e.graph.after(cur.node)
		}
		if !ok {
			return &RunResult{State: state}, nil
		}
		cur = next
	}
}

// LatestState loads the most recent checkpointed state for a thread, or nil
// when the thread has never checkpointed.
func (e *Engine) LatestState(ctx context.Context, threadID uuid.UUID) (*types.ResearchState, error) {
	if e.ckpts == nil {
		return nil, nil
	}
	cp, err := e.ckpts.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	var state types.ResearchState
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return &state, nil
}

func (e *Engine) runGroup(ctx context.Context, sc *StageContext, state *types.ResearchState, visits *atomic.Int64) error {
	members := e.graph.fanOutMembers
	updates := make([]types.StateUpdate, len(members))

	eg, gctx := errgroup.WithContext(ctx)
	for i, name := range members {
		// Each member reads a private snapshot: no stage may observe
		// another's partial output within the group.
		snapshot := state.Clone()
		eg.Go(func() error {
			u, err := e.execStage(gctx, sc, name, snapshot, visits)
			if err != nil {
				return err
			}
			updates[i] = u
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// Merge in declared order so conflicting keys resolve the same way on
	// every run regardless of scheduling.
	for i := range updates {
		state.Apply(updates[i])
	}
	return nil
}

func (e *Engine) execStage(ctx context.Context, sc *StageContext, name string, state *types.ResearchState, visits *atomic.Int64) (update types.StateUpdate, err error) {
	if visits.Add(1) > int64(e.limit) {
		return types.StateUpdate{}, fmt.Errorf("%w: more than %d node visits", errors.ErrRecursionLimitExceeded, e.limit)
	}
	fn, ok := e.graph.nodes[name]
	if !ok {
		return types.StateUpdate{}, &errors.StageError{Stage: name, Err: fmt.Errorf("stage not registered")}
	}

	ctx, span := e.tracer.Start(ctx, "stage."+name,
		trace.WithAttributes(attribute.String("job.id", sc.JobID.String())))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = &errors.StageError{Stage: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	started := time.Now()
	update, stageErr := fn(ctx, sc, state)
	if stageErr != nil {
		span.RecordError(stageErr)
		return types.StateUpdate{}, &errors.StageError{Stage: name, Err: stageErr}
	}
	sc.Log.Debug("Stage completed", "stage", name, "took", time.Since(started))
	return update, nil
}

func (e *Engine) saveCheckpoint(ctx context.Context, threadID uuid.UUID, parentID *uuid.UUID, node string, state *types.ResearchState) *uuid.UUID {
	if e.ckpts == nil {
		return parentID
	}
	raw, err := json.Marshal(state)
	if err != nil {
		e.log.Warn("Could not serialize state for checkpoint", "thread_id", threadID, "error", err)
		return parentID
	}
	meta, _ := json.Marshal(map[string]any{"node": node})
	cp := &types.Checkpoint{
		ID:        uuid.New(),
		ThreadID:  threadID,
		ParentID:  parentID,
		State:     raw,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	// Persistence hiccups must not kill the run; the next checkpoint
	// re-chains from the last one that stuck.
	if err := e.ckpts.Put(ctx, cp); err != nil {
		e.log.Warn("Checkpoint write failed, continuing", "thread_id", threadID, "node", node, "error", err)
		return parentID
	}
	id := cp.ID
	return &id
}

func (e *Engine) latestCheckpointID(ctx context.Context, threadID uuid.UUID) *uuid.UUID {
	if e.ckpts == nil {
		return nil
	}
	cp, err := e.ckpts.Latest(ctx, threadID)
	if err != nil || cp == nil {
		return nil
	}
	id := cp.ID
	return &id
}
