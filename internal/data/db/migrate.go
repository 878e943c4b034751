package db

import (
	"gorm.io/gorm"

	types "github.com/surveylab/codeframe-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Coding inputs
		&types.Answer{},
		&types.AnswerEmbedding{},

		// Codeframe generation
		&types.Generation{},
		&types.HierarchyNode{},

		// Durable queue
		&types.JobRun{},
	)
}
