package app

import (
	"time"

	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type Config struct {
	HTTPAddr          string
	Environment       string
	Version           string
	MinAnswers        int
	WorkerConcurrency int
	WorkerMaxAttempts int
	WorkerRetryDelay  time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr:          envutil.String("HTTP_ADDR", ":8080"),
		Environment:       envutil.String("APP_ENV", "development"),
		Version:           envutil.String("APP_VERSION", "dev"),
		MinAnswers:        envutil.Int("GENERATION_MIN_ANSWERS", 10),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		WorkerMaxAttempts: envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		WorkerRetryDelay:  envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second),
	}
	log.Info("Config loaded",
		"http_addr", cfg.HTTPAddr,
		"environment", cfg.Environment,
		"min_answers", cfg.MinAnswers,
		"worker_concurrency", cfg.WorkerConcurrency,
	)
	return cfg
}
