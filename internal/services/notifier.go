package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/surveylab/codeframe-backend/internal/clients/redis"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// GenerationNotifier publishes generation lifecycle events over the redis
// bus so clients know when re-polling the status endpoint is worth it.
// Publishing is best-effort; a bus outage never fails the pipeline.
type GenerationNotifier interface {
	GenerationCreated(gen *types.Generation)
	GenerationProgress(generationID uuid.UUID, stage string, pct int, msg string)
	GenerationCompleted(gen *types.Generation)
	GenerationFailed(generationID uuid.UUID, msg string)

	// Job-level events, consumed by the worker runtime.
	JobProgress(job *types.JobRun, stage string, pct int, msg string)
	JobFailed(job *types.JobRun, stage string, msg string)
	JobDone(job *types.JobRun)
}

type generationNotifier struct {
	log *logger.Logger
	bus redisclient.EventBus
}

func NewGenerationNotifier(baseLog *logger.Logger, bus redisclient.EventBus) GenerationNotifier {
	return &generationNotifier{
		log: baseLog.With("service", "GenerationNotifier"),
		bus: bus,
	}
}

func (n *generationNotifier) publish(event string, data map[string]any) {
	if n == nil || n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, redisclient.Event{
		Channel: "generations",
		Event:   event,
		Data:    data,
	}); err != nil {
		n.log.Warn("Event publish failed", "event", event, "error", err)
	}
}

func (n *generationNotifier) GenerationCreated(gen *types.Generation) {
	if gen == nil {
		return
	}
	n.publish(redisclient.EventGenerationCreated, map[string]any{
		"generation_id": gen.ID.String(),
		"category_id":   gen.CategoryID.String(),
		"coding_type":   gen.CodingType,
		"status":        gen.Status,
	})
}

func (n *generationNotifier) GenerationProgress(generationID uuid.UUID, stage string, pct int, msg string) {
	n.publish(redisclient.EventGenerationProgress, map[string]any{
		"generation_id": generationID.String(),
		"stage":         stage,
		"progress":      pct,
		"message":       msg,
	})
}

func (n *generationNotifier) GenerationCompleted(gen *types.Generation) {
	if gen == nil {
		return
	}
	n.publish(redisclient.EventGenerationCompleted, map[string]any{
		"generation_id": gen.ID.String(),
		"category_id":   gen.CategoryID.String(),
		"n_clusters":    gen.NClusters,
		"n_answers":     gen.NAnswers,
	})
}

func (n *generationNotifier) GenerationFailed(generationID uuid.UUID, msg string) {
	n.publish(redisclient.EventGenerationFailed, map[string]any{
		"generation_id": generationID.String(),
		"error":         msg,
	})
}

func (n *generationNotifier) JobProgress(job *types.JobRun, stage string, pct int, msg string) {
	if job == nil || job.EntityID == nil {
		return
	}
	n.GenerationProgress(*job.EntityID, stage, pct, msg)
}

func (n *generationNotifier) JobFailed(job *types.JobRun, stage string, msg string) {
	if job == nil {
		return
	}
	n.log.Warn("Job failed", "job_id", job.ID, "job_type", job.JobType, "stage", stage, "error", msg)
}

func (n *generationNotifier) JobDone(job *types.JobRun) {
	if job == nil {
		return
	}
	n.log.Info("Job done", "job_id", job.ID, "job_type", job.JobType)
}
