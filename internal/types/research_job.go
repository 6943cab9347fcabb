package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusProcessing       JobStatus = "processing"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusRejected         JobStatus = "rejected"
)

// Terminal reports whether no further execution is permitted for the job.
// awaiting_approval is terminal for the current run only, not for the job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusRejected:
		return true
	default:
		return false
	}
}

type ResearchJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Company     string         `gorm:"column:company;not null;index" json:"company"`
	Status      JobStatus      `gorm:"column:status;not null;index" json:"status"`
	CurrentStep string         `gorm:"column:current_step" json:"current_step"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload,omitempty"`
	Interrupt   datatypes.JSON `gorm:"type:jsonb;column:interrupt" json:"interrupt,omitempty"`
	Report      string         `gorm:"type:text;column:report" json:"report,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LastUpdate  time.Time      `gorm:"column:last_update;not null" json:"last_update"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (ResearchJob) TableName() string { return "research_job" }

// InterruptPayload decodes the persisted interrupt, or nil when none is set.
func (j *ResearchJob) InterruptPayload() *Interrupt {
	if len(j.Interrupt) == 0 || string(j.Interrupt) == "null" {
		return nil
	}
	var iv Interrupt
	if err := jsonUnmarshal(j.Interrupt, &iv); err != nil {
		return nil
	}
	return &iv
}
