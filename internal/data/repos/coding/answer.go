package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type AnswerRepo interface {
	Create(dbc dbctx.Context, answers []*types.Answer) ([]*types.Answer, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Answer, error)
	GetByCategory(dbc dbctx.Context, categoryID uuid.UUID) ([]*types.Answer, error)
	CountByCategory(dbc dbctx.Context, categoryID uuid.UUID) (int64, error)
	// AssignCode writes the apply-phase outcome for one answer.
	AssignCode(dbc dbctx.Context, answerID uuid.UUID, codeID uuid.UUID, confidence float64, source string) error
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{
		db:  db,
		log: baseLog.With("repo", "AnswerRepo"),
	}
}

func (r *answerRepo) Create(dbc dbctx.Context, answers []*types.Answer) ([]*types.Answer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(answers) == 0 {
		return []*types.Answer{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (r *answerRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Answer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Answer
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *answerRepo) GetByCategory(dbc dbctx.Context, categoryID uuid.UUID) ([]*types.Answer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Answer
	if categoryID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("category_id = ?", categoryID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *answerRepo) CountByCategory(dbc dbctx.Context, categoryID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if categoryID == uuid.Nil {
		return 0, nil
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Answer{}).
		Where("category_id = ?", categoryID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *answerRepo) AssignCode(dbc dbctx.Context, answerID uuid.UUID, codeID uuid.UUID, confidence float64, source string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if answerID == uuid.Nil || codeID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Answer{}).
		Where("id = ?", answerID).
		Updates(map[string]interface{}{
			"code_id":         codeID,
			"code_confidence": confidence,
			"code_source":     source,
			"updated_at":      time.Now(),
		}).Error
}
