package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

type CheckpointRepo interface {
	Create(ctx context.Context, tx *gorm.DB, cp *types.Checkpoint) error
	Latest(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.Checkpoint, error)
	ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit int) ([]*types.Checkpoint, error)
}

type checkpointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) CheckpointRepo {
	return &checkpointRepo{db: db, log: baseLog.With("repo", "CheckpointRepo")}
}

func (r *checkpointRepo) Create(ctx context.Context, tx *gorm.DB, cp *types.Checkpoint) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(cp).Error
}

func (r *checkpointRepo) Latest(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.Checkpoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var cp types.Checkpoint
	err := transaction.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *checkpointRepo) ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit int) ([]*types.Checkpoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	var rows []*types.Checkpoint
	err := transaction.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
