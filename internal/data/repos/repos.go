package repos

import (
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/repos/coding"
	"github.com/surveylab/codeframe-backend/internal/data/repos/jobs"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type AnswerRepo = coding.AnswerRepo
type AnswerEmbeddingRepo = coding.AnswerEmbeddingRepo
type GenerationRepo = coding.GenerationRepo
type HierarchyNodeRepo = coding.HierarchyNodeRepo

type JobRunRepo = jobs.JobRunRepo

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return coding.NewAnswerRepo(db, baseLog)
}

func NewAnswerEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) AnswerEmbeddingRepo {
	return coding.NewAnswerEmbeddingRepo(db, baseLog)
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return coding.NewGenerationRepo(db, baseLog)
}

func NewHierarchyNodeRepo(db *gorm.DB, baseLog *logger.Logger) HierarchyNodeRepo {
	return coding.NewHierarchyNodeRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
