package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/repos"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// GormStore is the durable JobStore backed by Postgres or sqlite through the
// repo layer.
type GormStore struct {
	db       *gorm.DB
	log      *logger.Logger
	jobRepo  repos.ResearchJobRepo
	evRepo   repos.JobEventRepo
	ckptRepo repos.CheckpointRepo
}

func NewGormStore(db *gorm.DB, baseLog *logger.Logger) *GormStore {
	log := baseLog.With("store", "GormStore")
	return &GormStore{
		db:       db,
		log:      log,
		jobRepo:  repos.NewResearchJobRepo(db, baseLog),
		evRepo:   repos.NewJobEventRepo(db, baseLog),
		ckptRepo: repos.NewCheckpointRepo(db, baseLog),
	}
}

func (s *GormStore) Put(ctx context.Context, job *types.ResearchJob) error {
	err := s.jobRepo.Create(ctx, nil, job)
	if err != nil && isUniqueViolation(err) {
		return errors.ErrDuplicateJobID
	}
	return err
}

func (s *GormStore) Get(ctx context.Context, jobID uuid.UUID) (*types.ResearchJob, error) {
	return s.jobRepo.GetByID(ctx, nil, jobID)
}

func (s *GormStore) UpdateFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "payload", "interrupt":
			updates[k] = toJSON(v)
		default:
			updates[k] = v
		}
	}
	rows, err := s.jobRepo.UpdateFields(ctx, nil, jobID, updates)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *GormStore) AppendEvent(ctx context.Context, jobID uuid.UUID, ev types.Event) (int64, error) {
	var payload []byte
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payload = b
	}
	row, err := s.evRepo.Append(ctx, nil, jobID, ev.Type, payload)
	if err != nil {
		return 0, err
	}
	return row.Seq, nil
}

func (s *GormStore) ListEvents(ctx context.Context, jobID uuid.UUID, afterSeq int64) ([]types.Event, error) {
	rows, err := s.evRepo.ListAfter(ctx, nil, jobID, afterSeq)
	if err != nil {
		return nil, err
	}
	out := make([]types.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToEvent())
	}
	return out, nil
}

// GormStore doubles as the checkpoint store for durable deployments.

func (s *GormStore) PutCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	return s.ckptRepo.Create(ctx, nil, cp)
}

func (s *GormStore) LatestCheckpoint(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error) {
	return s.ckptRepo.Latest(ctx, nil, threadID)
}

// GormCheckpointStore adapts GormStore to the CheckpointStore contract.
type GormCheckpointStore struct{ Store *GormStore }

func (g GormCheckpointStore) Put(ctx context.Context, cp *types.Checkpoint) error {
	return g.Store.PutCheckpoint(ctx, cp)
}

func (g GormCheckpointStore) Latest(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error) {
	return g.Store.LatestCheckpoint(ctx, threadID)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}
