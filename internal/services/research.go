package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// ResearchService drives the job lifecycle: submission kicks off a pipeline
// run, approval resumes or rejects a suspended one. Runs execute on their own
// goroutine with a detached context so a disconnecting client never cancels
// research.
type ResearchService interface {
	Submit(ctx context.Context, req types.ResearchRequest) (*types.ResearchJob, error)
	Approve(ctx context.Context, id uuid.UUID, req types.ApprovalRequest) (*types.ResearchJob, error)
}

type researchService struct {
	jobs   JobStateService
	engine *graph.Engine
	log    *logger.Logger

	// onRunDone, when set, is signalled after a run goroutine finishes.
	// Tests use it to wait deterministically.
	onRunDone func(id uuid.UUID)
}

func NewResearchService(jobs JobStateService, engine *graph.Engine, baseLog *logger.Logger) ResearchService {
	return &researchService{
		jobs:   jobs,
		engine: engine,
		log:    baseLog.With("service", "ResearchService"),
	}
}

func (s *researchService) Submit(ctx context.Context, req types.ResearchRequest) (*types.ResearchJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	job, err := s.jobs.CreateJob(ctx, id, req)
	if err != nil {
		return nil, err
	}

	state := req.InitialState(id.String())
	go s.run(id, state, false)
	return job, nil
}

func (s *researchService) Approve(ctx context.Context, id uuid.UUID, req types.ApprovalRequest) (*types.ResearchJob, error) {
	job, err := s.jobs.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.ErrJobNotFound
	}
	if job.Status != types.JobStatusAwaitingApproval {
		return nil, fmt.Errorf("%w: job is %s", errors.ErrNotAwaitingApproval, job.Status)
	}

	if !req.Approved {
		s.log.Info("Research rejected", "job_id", id)
		if err := s.jobs.UpdateStatus(ctx, id, map[string]any{
			"status": types.JobStatusRejected,
			"error":  "Research rejected by user",
		}); err != nil {
			return nil, err
		}
		return s.currentJob(ctx, id)
	}

	state, err := s.resumeState(ctx, id, job)
	if err != nil {
		return nil, err
	}
	state.Apply(types.StateUpdate{
		CompanyURL:   optional(req.Data.CompanyURL),
		HQLocation:   optional(req.Data.HQLocation),
		Industry:     optional(req.Data.Industry),
		Interrupt:    nil,
		SetInterrupt: true,
	})

	if err := s.jobs.UpdateStatus(ctx, id, map[string]any{
		"status":    types.JobStatusProcessing,
		"interrupt": nil,
	}); err != nil {
		return nil, err
	}

	go s.run(id, state, true)
	return s.currentJob(ctx, id)
}

// currentJob re-reads the record and treats a vanished job as an error, so
// Approve never hands back a nil job without one.
func (s *researchService) currentJob(ctx context.Context, id uuid.UUID) (*types.ResearchJob, error) {
	job, err := s.jobs.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.ErrJobNotFound
	}
	return job, nil
}

// resumeState recovers the suspended state from the latest checkpoint. When
// no checkpoint stuck, it falls back to rebuilding the initial state from the
// submission payload.
func (s *researchService) resumeState(ctx context.Context, id uuid.UUID, job *types.ResearchJob) (*types.ResearchState, error) {
	state, err := s.engine.LatestState(ctx, id)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	var req types.ResearchRequest
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode job payload: %w", err)
		}
	}
	req.Company = job.Company
	return req.InitialState(id.String()), nil
}

// run executes the pipeline for one job from start to a terminal status or
// suspension. It deliberately uses a background context: job execution is
// decoupled from any request or viewer.
func (s *researchService) run(id uuid.UUID, state *types.ResearchState, resume bool) {
	ctx := context.Background()
	defer func() {
		if s.onRunDone != nil {
			s.onRunDone(id)
		}
	}()

	_ = s.jobs.UpdateStatus(ctx, id, map[string]any{
		"status":       types.JobStatusProcessing,
		"current_step": "Initializing",
	})

	res, err := s.engine.Run(ctx, id, state, graph.RunOptions{
		Resume: resume,
		OnNodeComplete: func(node string, st *types.ResearchState) {
			_ = s.jobs.UpdateStatus(ctx, id, map[string]any{"current_step": node})
		},
	})
	if err != nil {
		s.log.Error("Research run failed", "job_id", id, "error", err)
		_ = s.jobs.UpdateStatus(ctx, id, map[string]any{
			"status": types.JobStatusFailed,
			"error":  err.Error(),
		})
		return
	}

	if res.Interrupt != nil {
		s.log.Info("Research awaiting approval", "job_id", id, "kind", res.Interrupt.Kind)
		_, _ = s.jobs.AppendEvent(ctx, id, types.Event{
			Type: "interrupt",
			Payload: map[string]any{
				"kind":    res.Interrupt.Kind,
				"message": res.Interrupt.Message,
				"data":    res.Interrupt.Data,
			},
		})
		_ = s.jobs.UpdateStatus(ctx, id, map[string]any{
			"status":    types.JobStatusAwaitingApproval,
			"interrupt": res.Interrupt,
		})
		return
	}

	s.log.Info("Research completed", "job_id", id, "company", res.State.Company)
	_ = s.jobs.UpdateStatus(ctx, id, map[string]any{
		"status":    types.JobStatusCompleted,
		"report":    res.State.Report,
		"interrupt": nil,
	})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
