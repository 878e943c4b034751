package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/repos"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/jobs/runtime"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// Worker polls job_run for runnable work and dispatches claimed jobs to
// registered handlers. Each loop goroutine claims independently, so two
// loops never hold the same job thanks to SKIP LOCKED in the claim query.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   runtime.Notifier
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify runtime.Notifier) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	maxAttempts := envutil.Int("WORKER_MAX_ATTEMPTS", 5)
	retryDelay := envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second)
	staleRunning := envutil.Duration("WORKER_STALE_RUNNING", 30*time.Minute)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, maxAttempts, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.dispatch(ctx, workerID, job, maxAttempts)
		}
	}
}

// dispatch runs one claimed job through its handler. Every terminal
// failure that spends the retry budget funnels into the handler's
// exhaustion hook afterwards, so panics and handler-returned errors
// reconcile handler-owned state the same as failures the handler
// reported itself.
func (w *Worker) dispatch(ctx context.Context, workerID int, job *types.JobRun, maxAttempts int) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", fmt.Errorf("panic: %v", r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// Most pipelines call jc.Fail themselves; this is a safety net.
			jc.Fail("run", runErr)
		}
	}()

	if job.Status != types.JobStatusFailed || job.Attempts < maxAttempts {
		return
	}
	if eh, ok := h.(runtime.ExhaustionHandler); ok {
		eh.OnExhausted(jc)
	}
}
