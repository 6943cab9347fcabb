package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// MemoryStore is the in-process JobStore used when no durable backend is
// configured. It implements the same contract as the durable backends so
// call sites never branch on which one is wired.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]*types.ResearchJob
	events map[uuid.UUID][]types.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[uuid.UUID]*types.ResearchJob),
		events: make(map[uuid.UUID][]types.Event),
	}
}

func (m *MemoryStore) Put(ctx context.Context, job *types.ResearchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return errors.ErrDuplicateJobID
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jobID uuid.UUID) (*types.ResearchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) UpdateFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	applyJobFields(job, fields)
	return true, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, jobID uuid.UUID, ev types.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := int64(len(m.events[jobID])) + 1
	ev.Seq = seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	m.events[jobID] = append(m.events[jobID], ev)
	return seq, nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, jobID uuid.UUID, afterSeq int64) ([]types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.events[jobID]
	if afterSeq >= int64(len(all)) {
		return nil, nil
	}
	out := make([]types.Event, len(all[afterSeq:]))
	copy(out, all[afterSeq:])
	return out, nil
}

// MemoryCheckpointStore keeps checkpoints per thread in process.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[uuid.UUID][]*types.Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{threads: make(map[uuid.UUID][]*types.Checkpoint)}
}

func (m *MemoryCheckpointStore) Put(ctx context.Context, cp *types.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	stored := *cp
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], &stored)
	return nil
}

func (m *MemoryCheckpointStore) Latest(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.threads[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	// Appended in order, so the latest checkpoint is the tail.
	cp := *chain[len(chain)-1]
	return &cp, nil
}
