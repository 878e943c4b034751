package brand_extract

import (
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/clients/openai"
	"github.com/surveylab/codeframe-backend/internal/data/repos"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/services"
	"github.com/surveylab/codeframe-backend/internal/validation"
)

// Pipeline runs brand coding for a generation: one completion call over
// the whole answer batch extracts the distinct brand mentions, each brand
// is checked by the validation engine, and the results land as code nodes
// under a single synthetic Brands theme.
type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	generations repos.GenerationRepo
	nodes       repos.HierarchyNodeRepo
	answers     repos.AnswerRepo
	ai          openai.Client
	engine      *validation.Engine
	notify      services.GenerationNotifier
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	generations repos.GenerationRepo,
	nodes repos.HierarchyNodeRepo,
	answers repos.AnswerRepo,
	ai openai.Client,
	engine *validation.Engine,
	notify services.GenerationNotifier,
) *Pipeline {
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", "brand_extract"),
		generations: generations,
		nodes:       nodes,
		answers:     answers,
		ai:          ai,
		engine:      engine,
		notify:      notify,
	}
}

func (p *Pipeline) Type() string { return "brand_extract" }
