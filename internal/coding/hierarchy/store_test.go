package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
	"github.com/surveylab/codeframe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type fakeNodeRepo struct {
	nodes   map[uuid.UUID]*types.HierarchyNode
	updates map[uuid.UUID]map[string]interface{}
	deleted []uuid.UUID
}

func newFakeNodeRepo(nodes ...*types.HierarchyNode) *fakeNodeRepo {
	r := &fakeNodeRepo{
		nodes:   map[uuid.UUID]*types.HierarchyNode{},
		updates: map[uuid.UUID]map[string]interface{}{},
	}
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	return r
}

func (r *fakeNodeRepo) CreateBatch(_ dbctx.Context, nodes []*types.HierarchyNode) ([]*types.HierarchyNode, error) {
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
	return nodes, nil
}

func (r *fakeNodeRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.HierarchyNode, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return n, nil
}

func (r *fakeNodeRepo) GetByGeneration(_ dbctx.Context, generationID uuid.UUID) ([]*types.HierarchyNode, error) {
	var out []*types.HierarchyNode
	for _, n := range r.nodes {
		if n.GenerationID == generationID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNodeRepo) GetByParentIDs(_ dbctx.Context, parentIDs []uuid.UUID) ([]*types.HierarchyNode, error) {
	var out []*types.HierarchyNode
	for _, n := range r.nodes {
		if n.ParentID == nil {
			continue
		}
		for _, p := range parentIDs {
			if *n.ParentID == p {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (r *fakeNodeRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.updates[id] = updates
	return nil
}

func (r *fakeNodeRepo) DeleteByIDs(_ dbctx.Context, ids []uuid.UUID) error {
	r.deleted = append(r.deleted, ids...)
	for _, id := range ids {
		delete(r.nodes, id)
	}
	return nil
}

func testStore(t *testing.T, repo *fakeNodeRepo) *Store {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewStore(nil, log, repo)
}

// treeFixture builds theme -> code -> leaf in one generation.
func treeFixture(genID uuid.UUID) (theme, code, leaf *types.HierarchyNode) {
	theme = &types.HierarchyNode{ID: uuid.New(), GenerationID: genID, NodeType: types.NodeTypeTheme, Name: "Benefits", Level: 0}
	code = &types.HierarchyNode{ID: uuid.New(), GenerationID: genID, ParentID: &theme.ID, NodeType: types.NodeTypeCode, Name: "Whitening", Level: 1}
	leaf = &types.HierarchyNode{ID: uuid.New(), GenerationID: genID, ParentID: &code.ID, NodeType: types.NodeTypeCode, Name: "Stain removal", Level: 2}
	return theme, code, leaf
}

func TestApplyUnknownAction(t *testing.T) {
	s := testStore(t, newFakeNodeRepo())
	err := s.Apply(context.Background(), uuid.New(), "promote", EditParams{})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestRename(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	repo := newFakeNodeRepo(theme, code, leaf)
	s := testStore(t, repo)

	if err := s.Apply(context.Background(), genID, ActionRename, EditParams{NodeID: code.ID, Name: "  Whitening power  "}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := repo.updates[code.ID]["name"]; got != "Whitening power" {
		t.Fatalf("name update: %v", got)
	}

	err := s.Apply(context.Background(), genID, ActionRename, EditParams{NodeID: code.ID})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("empty name: want ErrInvalidArgument, got %v", err)
	}
}

func TestRenameRejectsForeignGeneration(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	s := testStore(t, newFakeNodeRepo(theme, code, leaf))

	err := s.Apply(context.Background(), uuid.New(), ActionRename, EditParams{NodeID: code.ID, Name: "x"})
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("foreign generation: want ErrNotFound, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	repo := newFakeNodeRepo(theme, code, leaf)
	s := testStore(t, repo)

	if err := s.Apply(context.Background(), genID, ActionDelete, EditParams{NodeID: code.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.deleted) != 2 {
		t.Fatalf("delete must take the subtree: %v", repo.deleted)
	}
	if _, ok := repo.nodes[theme.ID]; !ok {
		t.Fatalf("sibling root must survive")
	}
	if _, ok := repo.nodes[leaf.ID]; ok {
		t.Fatalf("descendant must be gone")
	}
}

func TestAddChild(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	repo := newFakeNodeRepo(theme, code, leaf)
	s := testStore(t, repo)

	if err := s.Apply(context.Background(), genID, ActionAddChild, EditParams{ParentID: theme.ID, Name: "Freshness"}); err != nil {
		t.Fatalf("add_child: %v", err)
	}
	if len(repo.nodes) != 4 {
		t.Fatalf("node count: %d", len(repo.nodes))
	}
	for _, n := range repo.nodes {
		if n.Name != "Freshness" {
			continue
		}
		if n.ParentID == nil || *n.ParentID != theme.ID || n.Level != 1 || n.NodeType != types.NodeTypeCode {
			t.Fatalf("child shape: %+v", n)
		}
		return
	}
	t.Fatalf("child not created")
}

func TestMoveRejectsCycles(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	s := testStore(t, newFakeNodeRepo(theme, code, leaf))

	err := s.Apply(context.Background(), genID, ActionMove, EditParams{NodeID: code.ID, NewParentID: code.ID})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("self move: want ErrInvalidArgument, got %v", err)
	}

	err = s.Apply(context.Background(), genID, ActionMove, EditParams{NodeID: code.ID, NewParentID: leaf.ID})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("descendant move: want ErrInvalidArgument, got %v", err)
	}
}

func TestMoveReparentsAndRelevels(t *testing.T) {
	genID := uuid.New()
	theme, code, leaf := treeFixture(genID)
	other := &types.HierarchyNode{ID: uuid.New(), GenerationID: genID, NodeType: types.NodeTypeTheme, Name: "Drawbacks", Level: 0}
	repo := newFakeNodeRepo(theme, code, leaf, other)
	s := testStore(t, repo)

	if err := s.Apply(context.Background(), genID, ActionMove, EditParams{NodeID: leaf.ID, NewParentID: other.ID}); err != nil {
		t.Fatalf("move: %v", err)
	}
	up := repo.updates[leaf.ID]
	if up["parent_id"] != other.ID {
		t.Fatalf("parent update: %v", up)
	}
	if up["level"] != 1 {
		t.Fatalf("level update: %v", up)
	}
}
