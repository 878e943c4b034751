package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/coding/clustering"
	"github.com/surveylab/codeframe-backend/internal/coding/embedding"
	"github.com/surveylab/codeframe-backend/internal/coding/hierarchy"
	"github.com/surveylab/codeframe-backend/internal/jobs/pipeline/brand_extract"
	"github.com/surveylab/codeframe-backend/internal/jobs/pipeline/cluster_label"
	jobruntime "github.com/surveylab/codeframe-backend/internal/jobs/runtime"
	"github.com/surveylab/codeframe-backend/internal/jobs/worker"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/services"
	"github.com/surveylab/codeframe-backend/internal/validation"
)

type Services struct {
	Notifier   services.GenerationNotifier
	Job        services.JobService
	Generation services.GenerationService
	Validation services.ValidationService

	EmbeddingCache *embedding.Cache
	HierarchyStore *hierarchy.Store
	Engine         *validation.Engine

	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	notifier := services.NewGenerationNotifier(log, clients.EventBus)

	cache := embedding.NewCache(db, log, reposet.AnswerEmbedding, clients.Openai)
	coordinator := clustering.NewCoordinator(log, clients.Clusterer)
	store := hierarchy.NewStore(db, log, reposet.HierarchyNode)

	var visionSrc validation.VisionSource
	if clients.Vision != nil {
		visionSrc = validation.NewVisionSource(log, clients.Vision)
	}
	var kgSrc validation.KGraphSource
	var simSrc validation.SimilaritySource
	if clients.KGraph != nil {
		kgSrc = validation.NewKGraphSource(log, clients.KGraph)
		simSrc = validation.NewSimilaritySource(log, clients.KGraph, clients.Openai)
	}
	var searchSrc validation.SearchSource
	if clients.WebSearch != nil {
		searchSrc = validation.NewSearchSource(log, clients.WebSearch)
	}
	engine := validation.NewEngine(log, visionSrc, kgSrc, simSrc, searchSrc)

	jobService := services.NewJobService(log, reposet.JobRun)
	generationService := services.NewGenerationService(
		log,
		reposet.Generation,
		reposet.Answer,
		reposet.HierarchyNode,
		cache,
		coordinator,
		store,
		jobService,
		notifier,
		clients.Openai,
	)
	validationService := services.NewValidationService(log, engine, clients.ValidationCache)

	registry := jobruntime.NewRegistry()
	if err := registry.Register(cluster_label.New(db, log, reposet.Generation, reposet.HierarchyNode, reposet.Answer, clients.Openai, notifier)); err != nil {
		return Services{}, fmt.Errorf("register cluster_label: %w", err)
	}
	if err := registry.Register(brand_extract.New(db, log, reposet.Generation, reposet.HierarchyNode, reposet.Answer, clients.Openai, engine, notifier)); err != nil {
		return Services{}, fmt.Errorf("register brand_extract: %w", err)
	}

	jobWorker := worker.NewWorker(db, log, reposet.JobRun, registry, notifier)

	return Services{
		Notifier:       notifier,
		Job:            jobService,
		Generation:     generationService,
		Validation:     validationService,
		EmbeddingCache: cache,
		HierarchyStore: store,
		Engine:         engine,
		JobRegistry:    registry,
		JobWorker:      jobWorker,
	}, nil
}
