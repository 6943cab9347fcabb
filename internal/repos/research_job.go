package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

type ResearchJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.ResearchJob) error
	GetByID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.ResearchJob, error)
	// UpdateFields patches a job row by id and returns the number of rows hit,
	// so callers can treat unknown ids as a no-op.
	UpdateFields(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, updates map[string]any) (int64, error)
}

type researchJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResearchJobRepo(db *gorm.DB, baseLog *logger.Logger) ResearchJobRepo {
	return &researchJobRepo{db: db, log: baseLog.With("repo", "ResearchJobRepo")}
}

func (r *researchJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ResearchJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(job).Error
}

func (r *researchJobRepo) GetByID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.ResearchJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.ResearchJob
	err := transaction.WithContext(ctx).Where("id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *researchJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, updates map[string]any) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.ResearchJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	return res.RowsAffected, res.Error
}
