package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/surveylab/codeframe-backend/internal/data/repos"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/ctxutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// JobService enqueues durable background work and exposes the cancel and
// inspection surface over job_run. Execution itself belongs to the worker
// pool.
type JobService interface {
	Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*types.JobRun, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{
		log:  baseLog.With("service", "JobService"),
		repo: repo,
	}
}

func (s *jobService) Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: job type required", apperr.ErrInvalidArgument)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	// Carry the request's trace identity into the background run.
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var entityRef *uuid.UUID
	if entityID != uuid.Nil {
		entityRef = &entityID
	}
	now := time.Now()
	job := &types.JobRun{
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityRef,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return created[0], nil
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return job, nil
}

func (s *jobService) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*types.JobRun, error) {
	return s.repo.GetByEntity(dbctx.Context{Ctx: ctx}, entityType, entityID)
}

// Cancel flips a job to canceled unless it already reached a terminal
// status. A running job observes the cancel at its next guarded write.
func (s *jobService) Cancel(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, id,
		[]string{types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusCanceled},
		map[string]interface{}{
			"status":    types.JobStatusCanceled,
			"stage":     "canceled",
			"locked_at": nil,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job %s already %s: %w", id, job.Status, apperr.ErrTerminalStatus)
	}
	return s.repo.GetByID(dbc, id)
}
