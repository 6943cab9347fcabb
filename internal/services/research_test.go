package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/graph/nodes"
	"github.com/scoutline/scoutline-backend/internal/logger"
	pkgerrors "github.com/scoutline/scoutline-backend/internal/pkg/errors"
	"github.com/scoutline/scoutline-backend/internal/store"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// testHarness wires a research service against in-memory stores and the real
// pipeline graph with no providers, so analysis stages produce empty output.
type testHarness struct {
	svc     *researchService
	jobs    JobStateService
	runDone chan uuid.UUID
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	log := logger.NewNop()
	jobStore := store.NewMemoryStore()
	jobs := NewJobStateService(jobStore, log)

	g := nodes.BuildResearchGraph(nodes.Deps{})
	emitter := graph.EmitterFunc(func(ctx context.Context, jobID uuid.UUID, ev types.Event) {
		_, _ = jobs.AppendEvent(ctx, jobID, ev)
	})
	eng, err := graph.NewEngine(g, store.NewMemoryCheckpointStore(), emitter, log, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	runDone := make(chan uuid.UUID, 4)
	svc := &researchService{
		jobs:      jobs,
		engine:    eng,
		log:       log.With("service", "ResearchService"),
		onRunDone: func(id uuid.UUID) { runDone <- id },
	}
	return &testHarness{svc: svc, jobs: jobs, runDone: runDone}
}

func (h *testHarness) waitRun(t *testing.T) {
	t.Helper()
	select {
	case <-h.runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.svc.Submit(context.Background(), types.ResearchRequest{Company: "  "})
	if !errors.Is(err, pkgerrors.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestMissingDataInterruptThenApprove(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	job, err := h.svc.Submit(ctx, types.ResearchRequest{Company: "Acme"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitRun(t)

	job, err = h.jobs.GetStatus(ctx, job.ID)
	if err != nil || job == nil {
		t.Fatalf("GetStatus: job=%v err=%v", job, err)
	}
	if job.Status != types.JobStatusAwaitingApproval {
		t.Fatalf("status = %s, want awaiting_approval", job.Status)
	}
	iv := job.InterruptPayload()
	if iv == nil || iv.Kind != types.InterruptKindMissingData {
		t.Fatalf("interrupt = %+v", iv)
	}
	fields, _ := iv.Data["missing_fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("missing_fields = %v", iv.Data["missing_fields"])
	}

	// Events emitted before suspension must be on the log already.
	events, err := h.jobs.ListEvents(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	preResume := len(events)
	if preResume == 0 || events[0].Type != "research_init" {
		t.Fatalf("pre-resume events = %v", eventTypes(events))
	}

	_, err = h.svc.Approve(ctx, job.ID, types.ApprovalRequest{
		Approved: true,
		Data: types.ApprovalData{
			CompanyURL: "https://acme.example",
			HQLocation: "Springfield",
		},
	})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	h.waitRun(t)

	job, _ = h.jobs.GetStatus(ctx, job.ID)
	if job.Status != types.JobStatusCompleted {
		t.Fatalf("status after resume = %s (error=%q), want completed", job.Status, job.Error)
	}
	if !strings.Contains(job.Report, nodes.NoReportMarker) {
		t.Fatalf("report = %q, want the no-report marker", job.Report)
	}
	if job.InterruptPayload() != nil {
		t.Fatal("interrupt must be cleared on completion")
	}

	// Resume must have skipped grounding and run the analysts with the
	// merged fields visible.
	state, err := h.svc.engine.LatestState(ctx, job.ID)
	if err != nil || state == nil {
		t.Fatalf("LatestState: state=%v err=%v", state, err)
	}
	if state.CompanyURL != "https://acme.example" || state.HQLocation != "Springfield" {
		t.Fatalf("approval data not merged: url=%q hq=%q", state.CompanyURL, state.HQLocation)
	}
	if state.Interrupt != nil {
		t.Fatal("state interrupt must be cleared by approval")
	}

	// The pre-interrupt event history survives the resume.
	events, _ = h.jobs.ListEvents(ctx, job.ID, 0)
	if len(events) < preResume {
		t.Fatalf("event log shrank across resume: %d -> %d", preResume, len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Fatalf("event seq gap at %d: %v", i, eventTypes(events))
		}
	}
}

func TestRejectIsTerminal(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	job, err := h.svc.Submit(ctx, types.ResearchRequest{Company: "Acme"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitRun(t)

	rejected, err := h.svc.Approve(ctx, job.ID, types.ApprovalRequest{Approved: false})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != types.JobStatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}

	// Approve after reject must fail; the job never processes again.
	_, err = h.svc.Approve(ctx, job.ID, types.ApprovalRequest{Approved: true})
	if !errors.Is(err, pkgerrors.ErrNotAwaitingApproval) {
		t.Fatalf("approve after reject: err = %v, want ErrNotAwaitingApproval", err)
	}
}

// vanishingJobs drops the record from reads after a set number of GetStatus
// calls, imitating a store hiccup mid-approval.
type vanishingJobs struct {
	JobStateService
	reads    int
	failFrom int
}

func (v *vanishingJobs) GetStatus(ctx context.Context, id uuid.UUID) (*types.ResearchJob, error) {
	v.reads++
	if v.reads > v.failFrom {
		return nil, nil
	}
	return v.JobStateService.GetStatus(ctx, id)
}

func TestApproveErrorsWhenRecordVanishes(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	job, err := h.svc.Submit(ctx, types.ResearchRequest{Company: "Acme"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitRun(t)

	// First read inside Approve sees the record; the re-read after the
	// status write does not.
	h.svc.jobs = &vanishingJobs{JobStateService: h.jobs, failFrom: 1}

	got, err := h.svc.Approve(ctx, job.ID, types.ApprovalRequest{Approved: false})
	if !errors.Is(err, pkgerrors.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
	if got != nil {
		t.Fatalf("got job %+v, want nil alongside the error", got)
	}
}

func TestApproveUnknownJob(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.svc.Approve(context.Background(), uuid.New(), types.ApprovalRequest{Approved: true})
	if !errors.Is(err, pkgerrors.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestCompleteRequestRunsToCompletion(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	job, err := h.svc.Submit(ctx, types.ResearchRequest{
		Company:    "Acme",
		CompanyURL: "https://acme.example",
		HQLocation: "Springfield",
		Industry:   "Robotics",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitRun(t)

	job, _ = h.jobs.GetStatus(ctx, job.ID)
	if job.Status != types.JobStatusCompleted {
		t.Fatalf("status = %s (error=%q), want completed", job.Status, job.Error)
	}

	events, _ := h.jobs.ListEvents(ctx, job.ID, 0)
	seen := strings.Join(eventTypes(events), ",")
	for _, want := range []string{"research_init", "analysis_start", "collection_complete", "curation"} {
		if !strings.Contains(seen, want) {
			t.Fatalf("events %s missing %s", seen, want)
		}
	}
}

func TestStageFailureFailsJob(t *testing.T) {
	log := logger.NewNop()
	jobStore := store.NewMemoryStore()
	jobs := NewJobStateService(jobStore, log)

	g := graph.New()
	g.AddNode("boom", func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		panic("stage blew up")
	})
	g.SetEntry("boom")
	eng, err := graph.NewEngine(g, store.NewMemoryCheckpointStore(), nil, log, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	runDone := make(chan uuid.UUID, 1)
	svc := &researchService{
		jobs:      jobs,
		engine:    eng,
		log:       log,
		onRunDone: func(id uuid.UUID) { runDone <- id },
	}

	ctx := context.Background()
	job, err := svc.Submit(ctx, types.ResearchRequest{Company: "Acme"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runDone

	job, _ = jobs.GetStatus(ctx, job.ID)
	if job.Status != types.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Error, "boom") {
		t.Fatalf("error %q must name the failing stage", job.Error)
	}

	// A failed job is terminal; resume attempts are refused.
	_, err = svc.Approve(ctx, job.ID, types.ApprovalRequest{Approved: true})
	if !errors.Is(err, pkgerrors.ErrNotAwaitingApproval) {
		t.Fatalf("approve on failed job: err = %v, want ErrNotAwaitingApproval", err)
	}
}

func eventTypes(events []types.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
