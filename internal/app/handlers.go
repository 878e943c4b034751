package app

import (
	httpH "github.com/surveylab/codeframe-backend/internal/http/handlers"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type Handlers struct {
	Generation *httpH.GenerationHandler
	Validation *httpH.ValidationHandler
	Job        *httpH.JobHandler
	Health     *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Generation: httpH.NewGenerationHandler(serviceset.Generation),
		Validation: httpH.NewValidationHandler(serviceset.Validation),
		Job:        httpH.NewJobHandler(serviceset.Job),
		Health:     httpH.NewHealthHandler(),
	}
}
