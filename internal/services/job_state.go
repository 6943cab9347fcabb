package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/store"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// JobStateService mediates every read and write of job records. The engine,
// the approval path and the stream publisher all go through it; nothing else
// is allowed to mutate a job.
type JobStateService interface {
	CreateJob(ctx context.Context, id uuid.UUID, req types.ResearchRequest) (*types.ResearchJob, error)
	// UpdateStatus merges the given fields and stamps last_update. Unknown
	// job ids are a tolerated no-op so late updates from an abandoned run
	// cannot fail anything.
	UpdateStatus(ctx context.Context, id uuid.UUID, fields map[string]any) error
	AppendEvent(ctx context.Context, id uuid.UUID, ev types.Event) (int64, error)
	// GetStatus returns (nil, nil) when the job is unknown.
	GetStatus(ctx context.Context, id uuid.UUID) (*types.ResearchJob, error)
	ListEvents(ctx context.Context, id uuid.UUID, afterSeq int64) ([]types.Event, error)
}

type jobStateService struct {
	store store.JobStore
	log   *logger.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewJobStateService(jobStore store.JobStore, baseLog *logger.Logger) JobStateService {
	return &jobStateService{
		store: jobStore,
		log:   baseLog.With("service", "JobStateService"),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// jobLock returns the per-job mutex, creating it on first use. Serializing
// writers per job id keeps read-modify-write status transitions from
// interleaving and keeps event sequence assignment gap-free on the durable
// backends, which compute the next seq from the current maximum.
func (s *jobStateService) jobLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *jobStateService) CreateJob(ctx context.Context, id uuid.UUID, req types.ResearchRequest) (*types.ResearchJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(req)
	now := time.Now().UTC()
	job := &types.ResearchJob{
		ID:         id,
		Company:    req.Company,
		Status:     types.JobStatusPending,
		Payload:    datatypes.JSON(payload),
		LastUpdate: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info("Created research job", "job_id", id, "company", req.Company)
	return job, nil
}

func (s *jobStateService) UpdateStatus(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	l := s.jobLock(id)
	l.Lock()
	defer l.Unlock()

	patch := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		patch[k] = v
	}
	now := time.Now().UTC()
	patch["last_update"] = now
	patch["updated_at"] = now

	found, err := s.store.UpdateFields(ctx, id, patch)
	if err != nil {
		// Best effort under persistence hiccups; the run must survive a
		// dropped status write.
		s.log.Warn("Job status update failed", "job_id", id, "error", err)
		return err
	}
	if !found {
		s.log.Debug("Status update for unknown job ignored", "job_id", id)
	}
	return nil
}

func (s *jobStateService) AppendEvent(ctx context.Context, id uuid.UUID, ev types.Event) (int64, error) {
	l := s.jobLock(id)
	l.Lock()
	defer l.Unlock()

	seq, err := s.store.AppendEvent(ctx, id, ev)
	if err != nil {
		s.log.Warn("Event append failed", "job_id", id, "type", ev.Type, "error", err)
		return 0, err
	}
	return seq, nil
}

func (s *jobStateService) GetStatus(ctx context.Context, id uuid.UUID) (*types.ResearchJob, error) {
	return s.store.Get(ctx, id)
}

func (s *jobStateService) ListEvents(ctx context.Context, id uuid.UUID, afterSeq int64) ([]types.Event, error) {
	return s.store.ListEvents(ctx, id, afterSeq)
}
