package app

import (
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/repos"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type Repos struct {
	Answer          repos.AnswerRepo
	AnswerEmbedding repos.AnswerEmbeddingRepo
	Generation      repos.GenerationRepo
	HierarchyNode   repos.HierarchyNodeRepo
	JobRun          repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Answer:          repos.NewAnswerRepo(db, log),
		AnswerEmbedding: repos.NewAnswerEmbeddingRepo(db, log),
		Generation:      repos.NewGenerationRepo(db, log),
		HierarchyNode:   repos.NewHierarchyNodeRepo(db, log),
		JobRun:          repos.NewJobRunRepo(db, log),
	}
}
