package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/types"
	"github.com/scoutline/scoutline-backend/internal/utils"
)

const redisTxRetries = 5

// RedisStore keeps job records, event logs and checkpoints in Redis. Records
// are JSON values, events live in a per-job list and the sequence counter is
// an INCR key, so append stays atomic under concurrent emitters.
type RedisStore struct {
	log *logger.Logger
	rdb *redis.Client
}

func NewRedisStore(log *logger.Logger) (*RedisStore, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{log: log.With("store", "RedisStore"), rdb: rdb}, nil
}

func jobKey(id uuid.UUID) string        { return "job:" + id.String() }
func jobSeqKey(id uuid.UUID) string     { return "job:" + id.String() + ":seq" }
func jobEventsKey(id uuid.UUID) string  { return "job:" + id.String() + ":events" }
func checkpointKey(id uuid.UUID) string { return "job:" + id.String() + ":checkpoint" }

func (s *RedisStore) Put(ctx context.Context, job *types.ResearchJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrDuplicateJobID
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID uuid.UUID) (*types.ResearchJob, error) {
	raw, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job types.ResearchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// UpdateFields runs an optimistic WATCH/MULTI cycle so a read-modify-write
// from one actor cannot silently drop another actor's concurrent write.
func (s *RedisStore) UpdateFields(ctx context.Context, jobID uuid.UUID, fields map[string]any) (bool, error) {
	key := jobKey(jobID)
	found := false

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		var job types.ResearchJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		applyJobFields(&job, fields)
		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err == nil {
			found = true
		}
		return err
	}

	var err error
	for i := 0; i < redisTxRetries; i++ {
		err = s.rdb.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return false, err
	}
	return found, nil
}

// appendEventScript assigns the next seq and pushes the event in one atomic
// step, so the list position of every event matches its seq even when
// emitters race.
var appendEventScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
local ev = cjson.decode(ARGV[1])
ev['seq'] = seq
redis.call('RPUSH', KEYS[2], cjson.encode(ev))
return seq
`)

func (s *RedisStore) AppendEvent(ctx context.Context, jobID uuid.UUID, ev types.Event) (int64, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}
	return appendEventScript.Run(ctx, s.rdb, []string{jobSeqKey(jobID), jobEventsKey(jobID)}, raw).Int64()
}

func (s *RedisStore) ListEvents(ctx context.Context, jobID uuid.UUID, afterSeq int64) ([]types.Event, error) {
	// Seq n sits at list index n-1, so the tail after afterSeq starts there.
	raws, err := s.rdb.LRange(ctx, jobEventsKey(jobID), afterSeq, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Event, 0, len(raws))
	for _, raw := range raws {
		var ev types.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			s.log.Warn("Skipping undecodable event", "job_id", jobID, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisStore) PutCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	// Only the latest checkpoint matters for resume; history is a list.
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, checkpointKey(cp.ThreadID), raw, 0)
	pipe.RPush(ctx, checkpointKey(cp.ThreadID)+":history", raw)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) LatestCheckpoint(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error) {
	raw, err := s.rdb.Get(ctx, checkpointKey(threadID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// RedisCheckpointStore adapts RedisStore to the CheckpointStore contract.
type RedisCheckpointStore struct{ Store *RedisStore }

func (r RedisCheckpointStore) Put(ctx context.Context, cp *types.Checkpoint) error {
	return r.Store.PutCheckpoint(ctx, cp)
}

func (r RedisCheckpointStore) Latest(ctx context.Context, threadID uuid.UUID) (*types.Checkpoint, error) {
	return r.Store.LatestCheckpoint(ctx, threadID)
}
