package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// EventEmitter is the capability handed to stages for progress reporting.
type EventEmitter interface {
	Emit(ctx context.Context, jobID uuid.UUID, ev types.Event)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, jobID uuid.UUID, ev types.Event)

func (f EmitterFunc) Emit(ctx context.Context, jobID uuid.UUID, ev types.Event) { f(ctx, jobID, ev) }

// StageContext is what a stage gets beyond the shared state: its job id, a
// component logger and the event emission capability.
type StageContext struct {
	JobID   uuid.UUID
	Log     *logger.Logger
	emitter EventEmitter
}

func NewStageContext(jobID uuid.UUID, log *logger.Logger, emitter EventEmitter) *StageContext {
	return &StageContext{JobID: jobID, Log: log, emitter: emitter}
}

func (sc *StageContext) Emit(ctx context.Context, ev types.Event) {
	if sc.emitter != nil {
		sc.emitter.Emit(ctx, sc.JobID, ev)
	}
}

// StageFunc is one pipeline stage: a function from shared state to a partial
// update. Stages signal "no data" with an empty update, never an error, and
// request suspension through the update's interrupt field.
type StageFunc func(ctx context.Context, sc *StageContext, state *types.ResearchState) (types.StateUpdate, error)

// Graph is a fixed directed graph over stage names with one entry node, one
// terminal node, sequential edges and a single fan-out/fan-in group behind
// the entry node's conditional edge.
type Graph struct {
	entry string
	nodes map[string]StageFunc
	edges map[string]string

	fanOutFrom    string
	fanOutMembers []string
	fanInTo       string
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]StageFunc),
		edges: make(map[string]string),
	}
}

func (g *Graph) AddNode(name string, fn StageFunc) *Graph {
	g.nodes[name] = fn
	return g
}

// SetEntry marks the entry node. Its outgoing edge is conditional: interrupt
// set → halt awaiting resume, otherwise → the fan-out group.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// AddEdge declares a sequential edge from → to.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// AddFanOut declares the fan-out group: after from, members run concurrently
// in declared order for merging, then collector runs once all have finished.
func (g *Graph) AddFanOut(from string, members []string, collector string) *Graph {
	g.fanOutFrom = from
	g.fanOutMembers = append([]string(nil), members...)
	g.fanInTo = collector
	return g
}

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// FanOutMembers returns the declared member order of the fan-out group.
func (g *Graph) FanOutMembers() []string { return append([]string(nil), g.fanOutMembers...) }

func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph has no entry node")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q is not registered", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("edge target %q is not registered", to)
		}
	}
	for _, m := range g.fanOutMembers {
		if _, ok := g.nodes[m]; !ok {
			return fmt.Errorf("fan-out member %q is not registered", m)
		}
	}
	if g.fanOutFrom != "" {
		if _, ok := g.nodes[g.fanInTo]; !ok {
			return fmt.Errorf("fan-in collector %q is not registered", g.fanInTo)
		}
	}
	return nil
}
