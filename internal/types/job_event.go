package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is one progress record emitted during execution. The store assigns
// Seq and Timestamp on append; sequence numbers per job are strictly
// increasing and gap-free from the subscriber's point of view.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
}

// Flatten renders the event the way the SSE layer frames it: payload fields
// inline next to type/seq/timestamp, matching the original stream vocabulary.
func (e Event) Flatten() map[string]any {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = e.Type
	out["seq"] = e.Seq
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return out
}

// JobEvent is the persisted row form of Event.
type JobEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_job_event_seq,unique" json:"job_id"`
	Seq       int64          `gorm:"column:seq;not null;index:idx_job_event_seq,unique" json:"seq"`
	Type      string         `gorm:"column:type;not null" json:"type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_event" }

// ToEvent converts a stored row back to the wire form.
func (r *JobEvent) ToEvent() Event {
	ev := Event{
		Type:      r.Type,
		Seq:       r.Seq,
		Timestamp: r.CreatedAt,
	}
	if len(r.Payload) > 0 {
		_ = json.Unmarshal(r.Payload, &ev.Payload)
	}
	return ev
}

func jsonUnmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
