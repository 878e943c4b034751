package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type AnswerEmbeddingRepo interface {
	GetByAnswerIDs(dbc dbctx.Context, answerIDs []uuid.UUID) ([]*types.AnswerEmbedding, error)
	// UpsertBatch writes vectors keyed by answer id; last write wins, which is
	// safe because the vector is deterministic in the content hash.
	UpsertBatch(dbc dbctx.Context, entries []*types.AnswerEmbedding) error
}

type answerEmbeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) AnswerEmbeddingRepo {
	return &answerEmbeddingRepo{
		db:  db,
		log: baseLog.With("repo", "AnswerEmbeddingRepo"),
	}
}

func (r *answerEmbeddingRepo) GetByAnswerIDs(dbc dbctx.Context, answerIDs []uuid.UUID) ([]*types.AnswerEmbedding, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnswerEmbedding
	if len(answerIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("answer_id IN ?", answerIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *answerEmbeddingRepo) UpsertBatch(dbc dbctx.Context, entries []*types.AnswerEmbedding) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	for _, e := range entries {
		e.UpdatedAt = now
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "answer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content_hash", "vector", "updated_at"}),
		}).
		Create(&entries).Error
}
