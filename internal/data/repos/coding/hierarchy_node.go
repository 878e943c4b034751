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

type HierarchyNodeRepo interface {
	// CreateBatch inserts all nodes in one statement so a status poller never
	// observes a half-written cluster.
	CreateBatch(dbc dbctx.Context, nodes []*types.HierarchyNode) ([]*types.HierarchyNode, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.HierarchyNode, error)
	GetByGeneration(dbc dbctx.Context, generationID uuid.UUID) ([]*types.HierarchyNode, error)
	GetByParentIDs(dbc dbctx.Context, parentIDs []uuid.UUID) ([]*types.HierarchyNode, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type hierarchyNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHierarchyNodeRepo(db *gorm.DB, baseLog *logger.Logger) HierarchyNodeRepo {
	return &hierarchyNodeRepo{
		db:  db,
		log: baseLog.With("repo", "HierarchyNodeRepo"),
	}
}

func (r *hierarchyNodeRepo) CreateBatch(dbc dbctx.Context, nodes []*types.HierarchyNode) ([]*types.HierarchyNode, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(nodes) == 0 {
		return []*types.HierarchyNode{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *hierarchyNodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.HierarchyNode, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var node types.HierarchyNode
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *hierarchyNodeRepo) GetByGeneration(dbc dbctx.Context, generationID uuid.UUID) ([]*types.HierarchyNode, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HierarchyNode
	if generationID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("generation_id = ?", generationID).
		Order("level ASC, display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hierarchyNodeRepo) GetByParentIDs(dbc dbctx.Context, parentIDs []uuid.UUID) ([]*types.HierarchyNode, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.HierarchyNode
	if len(parentIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_id IN ?", parentIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hierarchyNodeRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.HierarchyNode{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *hierarchyNodeRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.HierarchyNode{}).Error
}
