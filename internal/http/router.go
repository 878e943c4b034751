package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/surveylab/codeframe-backend/internal/http/handlers"
	httpMW "github.com/surveylab/codeframe-backend/internal/http/middleware"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	GenerationHandler *httpH.GenerationHandler
	ValidationHandler *httpH.ValidationHandler
	JobHandler        *httpH.JobHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if envutil.Bool("OTEL_ENABLED", false) {
		r.Use(otelgin.Middleware(envutil.String("OTEL_SERVICE_NAME", "codeframe-backend")))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		if cfg.GenerationHandler != nil {
			api.POST("/generations", cfg.GenerationHandler.Start)
			api.GET("/generations/:id", cfg.GenerationHandler.GetStatus)
			api.POST("/generations/:id/apply", cfg.GenerationHandler.Apply)
			api.PATCH("/generations/:id/hierarchy", cfg.GenerationHandler.EditHierarchy)
		}

		if cfg.ValidationHandler != nil {
			api.POST("/validations/brand", cfg.ValidationHandler.ValidateBrand)
		}

		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			api.GET("/generations/:id/jobs", cfg.JobHandler.ListGenerationJobs)
		}
	}

	return r
}
