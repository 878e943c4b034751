package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/jobs/runtime"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type memJobRunRepo struct{}

func (memJobRunRepo) Create(_ dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	return jobs, nil
}

func (memJobRunRepo) GetByID(dbctx.Context, uuid.UUID) (*types.JobRun, error) {
	return nil, apperr.ErrNotFound
}

func (memJobRunRepo) GetByEntity(dbctx.Context, string, uuid.UUID) ([]*types.JobRun, error) {
	return nil, nil
}

func (memJobRunRepo) ClaimNextRunnable(dbctx.Context, int, time.Duration, time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (memJobRunRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (memJobRunRepo) UpdateFieldsUnlessStatus(dbctx.Context, uuid.UUID, []string, map[string]interface{}) (bool, error) {
	return true, nil
}

func (memJobRunRepo) Heartbeat(dbctx.Context, uuid.UUID) error { return nil }

// panicHandler blows up mid-run and records exhaustion callbacks.
type panicHandler struct {
	exhausted int
}

func (h *panicHandler) Type() string                 { return "boom" }
func (h *panicHandler) Run(*runtime.Context) error   { panic("kaboom") }
func (h *panicHandler) OnExhausted(*runtime.Context) { h.exhausted++ }

// errHandler returns an error without failing the job itself, exercising
// the worker's safety net.
type errHandler struct {
	exhausted int
}

func (h *errHandler) Type() string                 { return "glitch" }
func (h *errHandler) Run(*runtime.Context) error   { return errors.New("handler error") }
func (h *errHandler) OnExhausted(*runtime.Context) { h.exhausted++ }

type okHandler struct {
	exhausted int
}

func (h *okHandler) Type() string { return "fine" }

func (h *okHandler) Run(jc *runtime.Context) error {
	jc.Succeed("done", nil)
	return nil
}

func (h *okHandler) OnExhausted(*runtime.Context) { h.exhausted++ }

func newTestWorker(t *testing.T, handlers ...runtime.Handler) *Worker {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	registry := runtime.NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register %s: %v", h.Type(), err)
		}
	}
	return NewWorker(nil, log, memJobRunRepo{}, registry, nil)
}

func claimedJob(jobType string, attempts int) *types.JobRun {
	return &types.JobRun{
		ID:       uuid.New(),
		JobType:  jobType,
		Status:   types.JobStatusRunning,
		Attempts: attempts,
	}
}

func TestDispatchPanicWithRetriesLeftSkipsExhaustionHook(t *testing.T) {
	h := &panicHandler{}
	w := newTestWorker(t, h)
	job := claimedJob("boom", 1)

	w.dispatch(context.Background(), 1, job, 3)

	if job.Status != types.JobStatusFailed {
		t.Fatalf("job status: want=%s got=%s", types.JobStatusFailed, job.Status)
	}
	if h.exhausted != 0 {
		t.Fatalf("retries remain, hook must not fire: %d", h.exhausted)
	}
}

func TestDispatchPanicOnFinalAttemptInvokesExhaustionHook(t *testing.T) {
	h := &panicHandler{}
	w := newTestWorker(t, h)
	job := claimedJob("boom", 3)

	w.dispatch(context.Background(), 1, job, 3)

	if job.Status != types.JobStatusFailed || job.Stage != "panic" {
		t.Fatalf("job: status=%s stage=%s", job.Status, job.Stage)
	}
	if h.exhausted != 1 {
		t.Fatalf("final panic must invoke the hook once: %d", h.exhausted)
	}
}

func TestDispatchHandlerErrorOnFinalAttemptInvokesExhaustionHook(t *testing.T) {
	h := &errHandler{}
	w := newTestWorker(t, h)
	job := claimedJob("glitch", 3)

	w.dispatch(context.Background(), 1, job, 3)

	if job.Status != types.JobStatusFailed || job.Stage != "run" {
		t.Fatalf("job: status=%s stage=%s", job.Status, job.Stage)
	}
	if h.exhausted != 1 {
		t.Fatalf("final handler error must invoke the hook once: %d", h.exhausted)
	}
}

func TestDispatchSuccessNeverInvokesExhaustionHook(t *testing.T) {
	h := &okHandler{}
	w := newTestWorker(t, h)
	job := claimedJob("fine", 3)

	w.dispatch(context.Background(), 1, job, 3)

	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status: want=%s got=%s", types.JobStatusSucceeded, job.Status)
	}
	if h.exhausted != 0 {
		t.Fatalf("successful run must not invoke the hook: %d", h.exhausted)
	}
}
