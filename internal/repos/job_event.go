package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

type JobEventRepo interface {
	// Append assigns the next sequence number for the job inside one
	// transaction and inserts the row. Callers serialize per job id; the
	// unique (job_id, seq) index backstops that discipline.
	Append(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, evType string, payload datatypes.JSON) (*types.JobEvent, error)
	ListAfter(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, afterSeq int64) ([]*types.JobEvent, error)
}

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return &jobEventRepo{db: db, log: baseLog.With("repo", "JobEventRepo")}
}

func (r *jobEventRepo) Append(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, evType string, payload datatypes.JSON) (*types.JobEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row *types.JobEvent
	err := transaction.WithContext(ctx).Transaction(func(innerTx *gorm.DB) error {
		var maxSeq int64
		if err := innerTx.Model(&types.JobEvent{}).
			Where("job_id = ?", jobID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		row = &types.JobEvent{
			ID:        uuid.New(),
			JobID:     jobID,
			Seq:       maxSeq + 1,
			Type:      evType,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		return innerTx.Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *jobEventRepo) ListAfter(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, afterSeq int64) ([]*types.JobEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.JobEvent
	err := transaction.WithContext(ctx).
		Where("job_id = ? AND seq > ?", jobID, afterSeq).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
