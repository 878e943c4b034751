package app

import (
	"github.com/gin-gonic/gin"

	httpserver "github.com/surveylab/codeframe-backend/internal/http"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Log:               log,
		GenerationHandler: handlerset.Generation,
		ValidationHandler: handlerset.Validation,
		JobHandler:        handlerset.Job,
		HealthHandler:     handlerset.Health,
	})
}
