package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/surveylab/codeframe-backend/internal/data/repos"
	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

const (
	ActionRename   = "rename"
	ActionDelete   = "delete"
	ActionAddChild = "add_child"
	ActionMove     = "move"
)

// EditParams carries the union of fields edit actions may need. Each action
// validates its own required fields before any mutation is attempted.
type EditParams struct {
	NodeID      uuid.UUID `json:"node_id"`
	ParentID    uuid.UUID `json:"parent_id"`
	NewParentID uuid.UUID `json:"new_parent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// Store owns structural edits to a generation's taxonomy tree.
type Store struct {
	db    *gorm.DB
	log   *logger.Logger
	nodes repos.HierarchyNodeRepo
}

func NewStore(db *gorm.DB, baseLog *logger.Logger, nodes repos.HierarchyNodeRepo) *Store {
	return &Store{
		db:    db,
		log:   baseLog.With("component", "HierarchyStore"),
		nodes: nodes,
	}
}

// Load returns the full nested tree for a generation.
func (s *Store) Load(ctx context.Context, generationID uuid.UUID) ([]*TreeNode, error) {
	flat, err := s.nodes.GetByGeneration(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return nil, err
	}
	return BuildTree(flat), nil
}

// Apply dispatches one edit action. An unknown action is a client error,
// not a data error.
func (s *Store) Apply(ctx context.Context, generationID uuid.UUID, action string, params EditParams) error {
	switch strings.TrimSpace(action) {
	case ActionRename:
		return s.rename(ctx, generationID, params)
	case ActionDelete:
		return s.delete(ctx, generationID, params)
	case ActionAddChild:
		return s.addChild(ctx, generationID, params)
	case ActionMove:
		return s.move(ctx, generationID, params)
	default:
		return fmt.Errorf("%w: unknown hierarchy action %q", pkgerrors.ErrInvalidArgument, action)
	}
}

func (s *Store) rename(ctx context.Context, generationID uuid.UUID, p EditParams) error {
	if p.NodeID == uuid.Nil {
		return fmt.Errorf("%w: rename requires node_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: rename requires name", pkgerrors.ErrInvalidArgument)
	}
	node, err := s.mustGet(ctx, generationID, p.NodeID)
	if err != nil {
		return err
	}
	return s.nodes.UpdateFields(dbctx.Context{Ctx: ctx}, node.ID, map[string]interface{}{
		"name": strings.TrimSpace(p.Name),
	})
}

func (s *Store) delete(ctx context.Context, generationID uuid.UUID, p EditParams) error {
	if p.NodeID == uuid.Nil {
		return fmt.Errorf("%w: delete requires node_id", pkgerrors.ErrInvalidArgument)
	}
	node, err := s.mustGet(ctx, generationID, p.NodeID)
	if err != nil {
		return err
	}

	flat, err := s.nodes.GetByGeneration(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return err
	}
	ids := append(DescendantIDs(flat, node.ID), node.ID)
	return s.nodes.DeleteByIDs(dbctx.Context{Ctx: ctx}, ids)
}

func (s *Store) addChild(ctx context.Context, generationID uuid.UUID, p EditParams) error {
	if p.ParentID == uuid.Nil {
		return fmt.Errorf("%w: add_child requires parent_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: add_child requires name", pkgerrors.ErrInvalidArgument)
	}
	parent, err := s.mustGet(ctx, generationID, p.ParentID)
	if err != nil {
		return err
	}

	child := &types.HierarchyNode{
		ID:           uuid.New(),
		GenerationID: generationID,
		ParentID:     &parent.ID,
		NodeType:     types.NodeTypeCode,
		Name:         strings.TrimSpace(p.Name),
		Description:  strings.TrimSpace(p.Description),
		Level:        parent.Level + 1,
	}
	_, err = s.nodes.CreateBatch(dbctx.Context{Ctx: ctx}, []*types.HierarchyNode{child})
	return err
}

func (s *Store) move(ctx context.Context, generationID uuid.UUID, p EditParams) error {
	if p.NodeID == uuid.Nil {
		return fmt.Errorf("%w: move requires node_id", pkgerrors.ErrInvalidArgument)
	}
	if p.NewParentID == uuid.Nil {
		return fmt.Errorf("%w: move requires new_parent_id", pkgerrors.ErrInvalidArgument)
	}
	if p.NodeID == p.NewParentID {
		return fmt.Errorf("%w: cannot move a node under itself", pkgerrors.ErrInvalidArgument)
	}
	node, err := s.mustGet(ctx, generationID, p.NodeID)
	if err != nil {
		return err
	}
	newParent, err := s.mustGet(ctx, generationID, p.NewParentID)
	if err != nil {
		return err
	}

	flat, err := s.nodes.GetByGeneration(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return err
	}
	for _, id := range DescendantIDs(flat, node.ID) {
		if id == newParent.ID {
			return fmt.Errorf("%w: cannot move a node under its own descendant", pkgerrors.ErrInvalidArgument)
		}
	}

	newLevel := newParent.Level + 1
	if err := s.nodes.UpdateFields(dbctx.Context{Ctx: ctx}, node.ID, map[string]interface{}{
		"parent_id": newParent.ID,
		"level":     newLevel,
	}); err != nil {
		return err
	}

	// Keep descendant depths consistent with the new position.
	delta := newLevel - node.Level
	if delta != 0 {
		byID := make(map[uuid.UUID]*types.HierarchyNode, len(flat))
		for _, n := range flat {
			byID[n.ID] = n
		}
		for _, id := range DescendantIDs(flat, node.ID) {
			desc, ok := byID[id]
			if !ok {
				continue
			}
			if err := s.nodes.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
				"level": desc.Level + delta,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) mustGet(ctx context.Context, generationID, nodeID uuid.UUID) (*types.HierarchyNode, error) {
	node, err := s.nodes.GetByID(dbctx.Context{Ctx: ctx}, nodeID)
	if err != nil {
		return nil, err
	}
	if node.GenerationID != generationID {
		return nil, fmt.Errorf("%w: node %s does not belong to generation %s", pkgerrors.ErrNotFound, nodeID, generationID)
	}
	return node, nil
}
