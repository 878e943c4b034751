package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/db"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

const (
	testMaxAttempts  = 3
	testRetryDelay   = time.Minute
	testStaleRunning = 30 * time.Minute
)

func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("POSTGRES_INTEGRATION") != "1" {
		t.Skip("set POSTGRES_INTEGRATION=1 to run Postgres integration tests")
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	svc, err := db.NewPostgresService(log)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return svc.DB()
}

func seedJob(t *testing.T, gdb *gorm.DB, repo JobRunRepo, mutate func(*types.JobRun)) *types.JobRun {
	t.Helper()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     types.JobTypeClusterLabel,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	t.Cleanup(func() {
		gdb.Unscoped().Where("id = ?", job.ID).Delete(&types.JobRun{})
	})
	return created[0]
}

func claim(t *testing.T, repo JobRunRepo) *types.JobRun {
	t.Helper()
	job, err := repo.ClaimNextRunnable(dbctx.Context{Ctx: context.Background()}, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	return job
}

func TestClaimNextRunnableTakesOldestQueued(t *testing.T) {
	gdb := integrationDB(t)
	log, _ := logger.New("test")
	repo := NewJobRunRepo(gdb, log)

	older := seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.CreatedAt = time.Now().Add(-2 * time.Minute)
	})
	newer := seedJob(t, gdb, repo, nil)

	first := claim(t, repo)
	if first == nil || first.ID != older.ID {
		t.Fatalf("first claim: want=%s got=%+v", older.ID, first)
	}
	if first.Status != types.JobStatusRunning || first.Attempts != 1 {
		t.Fatalf("claim must return the post-claim row: %+v", first)
	}
	fresh, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fresh.Status != types.JobStatusRunning || fresh.Attempts != 1 || fresh.LockedAt == nil || fresh.HeartbeatAt == nil {
		t.Fatalf("claimed row: %+v", fresh)
	}

	second := claim(t, repo)
	if second == nil || second.ID != newer.ID {
		t.Fatalf("second claim: want=%s got=%+v", newer.ID, second)
	}
	if third := claim(t, repo); third != nil {
		t.Fatalf("queue drained, got %+v", third)
	}
}

func TestClaimNextRunnableRetriesFailedAfterDelay(t *testing.T) {
	gdb := integrationDB(t)
	log, _ := logger.New("test")
	repo := NewJobRunRepo(gdb, log)

	past := time.Now().Add(-2 * testRetryDelay)
	retryable := seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.Status = types.JobStatusFailed
		j.Attempts = 1
		j.LastErrorAt = &past
	})
	recent := time.Now()
	seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.Status = types.JobStatusFailed
		j.Attempts = 1
		j.LastErrorAt = &recent
	})
	seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.Status = types.JobStatusFailed
		j.Attempts = testMaxAttempts
		j.LastErrorAt = &past
	})

	got := claim(t, repo)
	if got == nil || got.ID != retryable.ID {
		t.Fatalf("claim: want=%s got=%+v", retryable.ID, got)
	}
	if next := claim(t, repo); next != nil {
		t.Fatalf("neither the fresh failure nor the exhausted job is runnable, got %+v", next)
	}
}

func TestClaimNextRunnableReclaimsStaleRunning(t *testing.T) {
	gdb := integrationDB(t)
	log, _ := logger.New("test")
	repo := NewJobRunRepo(gdb, log)

	stale := time.Now().Add(-2 * testStaleRunning)
	abandoned := seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.Status = types.JobStatusRunning
		j.Attempts = 1
		j.HeartbeatAt = &stale
	})
	alive := time.Now()
	seedJob(t, gdb, repo, func(j *types.JobRun) {
		j.Status = types.JobStatusRunning
		j.Attempts = 1
		j.HeartbeatAt = &alive
	})

	got := claim(t, repo)
	if got == nil || got.ID != abandoned.ID {
		t.Fatalf("claim: want=%s got=%+v", abandoned.ID, got)
	}
	if got.Attempts != 2 {
		t.Fatalf("returned row must carry this run's attempt count: %+v", got)
	}
	fresh, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, abandoned.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fresh.Attempts != 2 {
		t.Fatalf("reclaim must count an attempt: %+v", fresh)
	}
	if next := claim(t, repo); next != nil {
		t.Fatalf("healthy running job must stay untouched, got %+v", next)
	}
}
