package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scoutline/scoutline-backend/internal/types"
)

// JobStore is the persistence boundary the engine side consumes. Backends
// only promise per-job atomicity; callers must not depend on which backend
// is wired in.
type JobStore interface {
	// Put creates the job record. Fails with errors.ErrDuplicateJobID when
	// the id is already taken.
	Put(ctx context.Context, job *types.ResearchJob) error
	// Get returns (nil, nil) when the job is absent.
	Get(ctx context.Context, jobID uuid.UUID) (*types.ResearchJob, error)
	// UpdateFields patches the record atomically. Returns false when the job
	// is unknown, which callers treat as a tolerated no-op.
	UpdateFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) (bool, error)
	// AppendEvent stamps the event with the next per-job sequence number and
	// persists it. Sequence assignment is the serialization point for
	// concurrent emitters.
	AppendEvent(ctx context.Context, jobID uuid.UUID, ev types.Event) (int64, error)
	// ListEvents returns events with seq > afterSeq in ascending order.
	ListEvents(ctx context.Context, jobID uuid.UUID, afterSeq int64) ([]types.Event, error)
}

// CheckpointStore persists engine checkpoints per thread id.
type CheckpointStore interface {
	Put(ctx context.Context, cp *types.Checkpoint) error
	// Latest returns (nil, nil) when the thread has no checkpoints yet.
	Latest(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error)
}

// applyJobFields patches a job struct from an UpdateFields map. Memory and
// redis backends share it so every backend understands the same field names
// the gorm backend maps to columns.
func applyJobFields(job *types.ResearchJob, fields map[string]any) {
	for key, val := range fields {
		switch key {
		case "status":
			switch v := val.(type) {
			case types.JobStatus:
				job.Status = v
			case string:
				job.Status = types.JobStatus(v)
			}
		case "current_step":
			if v, ok := val.(string); ok {
				job.CurrentStep = v
			}
		case "report":
			if v, ok := val.(string); ok {
				job.Report = v
			}
		case "error":
			if v, ok := val.(string); ok {
				job.Error = v
			}
		case "payload":
			job.Payload = toJSON(val)
		case "interrupt":
			job.Interrupt = toJSON(val)
		case "last_update":
			if v, ok := val.(time.Time); ok {
				job.LastUpdate = v
			}
		case "updated_at":
			if v, ok := val.(time.Time); ok {
				job.UpdatedAt = v
			}
		}
	}
}

func toJSON(val any) datatypes.JSON {
	if val == nil {
		return nil
	}
	switch v := val.(type) {
	case datatypes.JSON:
		return v
	case []byte:
		return datatypes.JSON(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return datatypes.JSON(b)
	}
}
