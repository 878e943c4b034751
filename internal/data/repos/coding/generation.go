package coding

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type GenerationRepo interface {
	Create(dbc dbctx.Context, gen *types.Generation) (*types.Generation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus applies updates only when the row's status is
	// not in disallowedStatuses. Returns whether a row was changed. This is
	// the guard that keeps failed/applied generations terminal.
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	// DecrementPending atomically decrements pending_clusters and returns the
	// remaining count. Never goes below zero.
	DecrementPending(dbc dbctx.Context, id uuid.UUID) (int, error)
	// AccumulateUsage merges token/cost counters into the usage JSONB blob.
	AccumulateUsage(dbc dbctx.Context, id uuid.UUID, promptTokens, completionTokens int, cost float64) error
}

type generationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationRepo"),
	}
}

func (r *generationRepo) Create(dbc dbctx.Context, gen *types.Generation) (*types.Generation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if gen == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if err := transaction.WithContext(dbc.Ctx).Create(gen).Error; err != nil {
		return nil, err
	}
	return gen, nil
}

func (r *generationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var gen types.Generation
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&gen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

func (r *generationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Generation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *generationRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.Generation{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationRepo) DecrementPending(dbc dbctx.Context, id uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return 0, pkgerrors.ErrNotFound
	}
	var remaining int
	err := transaction.WithContext(dbc.Ctx).Raw(`
    UPDATE generation
    SET pending_clusters = GREATEST(pending_clusters - 1, 0),
        updated_at = now()
    WHERE id = ?
    RETURNING pending_clusters
  `, id).Scan(&remaining).Error
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *generationRepo) AccumulateUsage(dbc dbctx.Context, id uuid.UUID, promptTokens, completionTokens int, cost float64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	// Concurrent labeling jobs accumulate into the same row; the merge runs
	// inside the statement so counters never lose an increment.
	return transaction.WithContext(dbc.Ctx).Exec(`
    UPDATE generation
    SET usage = jsonb_build_object(
          'prompt_tokens',     COALESCE((usage->>'prompt_tokens')::bigint, 0) + ?,
          'completion_tokens', COALESCE((usage->>'completion_tokens')::bigint, 0) + ?,
          'cost',              COALESCE((usage->>'cost')::numeric, 0) + ?
        ),
        updated_at = now()
    WHERE id = ?
  `, promptTokens, completionTokens, cost, id).Error
}
