package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

const DefaultPollInterval = 2 * time.Second

// Frame is one element of a subscription: either a heartbeat to keep the
// transport alive, or a data frame to deliver.
type Frame struct {
	Heartbeat bool
	Data      map[string]any
}

// StreamPublisher turns the append-only event log plus job status into an
// ordered push sequence. It polls rather than listens, because the backing
// store may not support change notification.
type StreamPublisher interface {
	// Subscribe streams historical events first, then live ones, and closes
	// the channel after the terminal frame. Cancelling ctx detaches the
	// subscriber without touching job execution.
	Subscribe(ctx context.Context, jobID uuid.UUID) <-chan Frame
}

type streamPublisher struct {
	jobs     JobStateService
	log      *logger.Logger
	interval time.Duration
}

func NewStreamPublisher(jobs JobStateService, baseLog *logger.Logger, interval time.Duration) StreamPublisher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &streamPublisher{
		jobs:     jobs,
		log:      baseLog.With("service", "StreamPublisher"),
		interval: interval,
	}
}

func (p *streamPublisher) Subscribe(ctx context.Context, jobID uuid.UUID) <-chan Frame {
	out := make(chan Frame)
	go p.pump(ctx, jobID, out)
	return out
}

func (p *streamPublisher) pump(ctx context.Context, jobID uuid.UUID, out chan<- Frame) {
	defer close(out)

	var lastSeq int64
	var lastStep string

	// First poll runs immediately so a late subscriber gets the full
	// history without waiting a tick.
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		done, err := p.poll(ctx, jobID, &lastSeq, &lastStep, out)
		if err != nil || done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll drains new events, reports step changes, and finishes with a terminal
// frame once the job reaches a terminal status. Returns done=true when the
// stream should close.
func (p *streamPublisher) poll(ctx context.Context, jobID uuid.UUID, lastSeq *int64, lastStep *string, out chan<- Frame) (bool, error) {
	sent := false

	events, err := p.jobs.ListEvents(ctx, jobID, *lastSeq)
	if err != nil {
		p.log.Warn("Event poll failed", "job_id", jobID, "error", err)
		// Transient storage trouble; keep the subscription alive.
		return false, p.send(ctx, out, Frame{Heartbeat: true})
	}
	for _, ev := range events {
		if err := p.send(ctx, out, Frame{Data: ev.Flatten()}); err != nil {
			return true, err
		}
		*lastSeq = ev.Seq
		sent = true
	}

	job, err := p.jobs.GetStatus(ctx, jobID)
	if err != nil {
		p.log.Warn("Status poll failed", "job_id", jobID, "error", err)
		return false, nil
	}
	if job == nil {
		_ = p.send(ctx, out, Frame{Data: map[string]any{
			"type":    "error",
			"message": "Job not found",
		}})
		return true, nil
	}

	if job.CurrentStep != "" && job.CurrentStep != *lastStep {
		*lastStep = job.CurrentStep
		if err := p.send(ctx, out, Frame{Data: map[string]any{
			"type":   "progress",
			"status": string(job.Status),
			"step":   job.CurrentStep,
		}}); err != nil {
			return true, err
		}
		sent = true
	}

	if job.Status.Terminal() {
		err := p.send(ctx, out, Frame{Data: terminalFrame(job)})
		return true, err
	}

	if !sent {
		return false, p.send(ctx, out, Frame{Heartbeat: true})
	}
	return false, nil
}

func (p *streamPublisher) send(ctx context.Context, out chan<- Frame, f Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- f:
		return nil
	}
}

func terminalFrame(job *types.ResearchJob) map[string]any {
	switch job.Status {
	case types.JobStatusCompleted:
		return map[string]any{
			"type":   "complete",
			"status": string(job.Status),
			"report": job.Report,
		}
	default:
		msg := job.Error
		if msg == "" {
			msg = "Research did not complete"
		}
		return map[string]any{
			"type":    "error",
			"status":  string(job.Status),
			"message": msg,
		}
	}
}
