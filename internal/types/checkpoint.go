package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Checkpoint is a persisted snapshot of pipeline state tied to a point in the
// stage graph. ThreadID ties the snapshot sequence to one logical job run;
// ParentID references the checkpoint the stage read its input from.
type Checkpoint struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"thread_id"`
	ParentID  *uuid.UUID     `gorm:"type:uuid" json:"parent_id,omitempty"`
	State     datatypes.JSON `gorm:"type:jsonb;column:state;not null" json:"state"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Checkpoint) TableName() string { return "checkpoint" }
