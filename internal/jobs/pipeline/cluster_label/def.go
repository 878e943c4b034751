package cluster_label

import (
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/clients/openai"
	"github.com/surveylab/codeframe-backend/internal/data/repos"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/services"
)

// Pipeline labels one cluster of a generation: it asks the model for a
// theme plus codes, writes the hierarchy nodes in one batch, and the run
// that drains pending_clusters to zero marks the generation completed.
// Cluster jobs are independent; one failing run never blocks its siblings.
type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	generations repos.GenerationRepo
	nodes       repos.HierarchyNodeRepo
	answers     repos.AnswerRepo
	ai          openai.Client
	notify      services.GenerationNotifier
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	generations repos.GenerationRepo,
	nodes repos.HierarchyNodeRepo,
	answers repos.AnswerRepo,
	ai openai.Client,
	notify services.GenerationNotifier,
) *Pipeline {
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", "cluster_label"),
		generations: generations,
		nodes:       nodes,
		answers:     answers,
		ai:          ai,
		notify:      notify,
	}
}

func (p *Pipeline) Type() string { return "cluster_label" }
