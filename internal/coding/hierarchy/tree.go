package hierarchy

import (
	"sort"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
)

// TreeNode is one nested entry of the reconstructed taxonomy tree.
type TreeNode struct {
	*types.HierarchyNode
	Children []*TreeNode `json:"children"`
}

// BuildTree groups a flat node list by parent reference in one pass. A node
// whose declared parent id is not present is treated as a root, never
// dropped: every input node appears exactly once in the output.
func BuildTree(nodes []*types.HierarchyNode) []*TreeNode {
	if len(nodes) == 0 {
		return []*TreeNode{}
	}

	byID := make(map[uuid.UUID]*TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &TreeNode{HierarchyNode: n, Children: []*TreeNode{}}
	}

	roots := make([]*TreeNode, 0)
	for _, n := range nodes {
		tn := byID[n.ID]
		if n.ParentID == nil || *n.ParentID == n.ID {
			roots = append(roots, tn)
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok {
			// Orphaned: recorded parent missing from this generation.
			roots = append(roots, tn)
			continue
		}
		parent.Children = append(parent.Children, tn)
	}

	// Parent cycles in stored rows would leave their members unreachable
	// from every root. Promote one member per cycle, detaching it from its
	// in-cycle parent so the result stays acyclic and total.
	reachable := make(map[uuid.UUID]bool, len(nodes))
	var mark func(*TreeNode)
	mark = func(tn *TreeNode) {
		if reachable[tn.ID] {
			return
		}
		reachable[tn.ID] = true
		for _, ch := range tn.Children {
			mark(ch)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for _, n := range nodes {
		if reachable[n.ID] {
			continue
		}
		tn := byID[n.ID]
		if parent, ok := byID[*n.ParentID]; ok {
			for i, ch := range parent.Children {
				if ch.ID == tn.ID {
					parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
					break
				}
			}
		}
		roots = append(roots, tn)
		mark(tn)
	}

	sortTree(roots)
	return roots
}

func sortTree(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].DisplayOrder != nodes[j].DisplayOrder {
			return nodes[i].DisplayOrder < nodes[j].DisplayOrder
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortTree(n.Children)
	}
}

// DescendantIDs returns the ids of every node below root (root excluded)
// within the given flat node set.
func DescendantIDs(nodes []*types.HierarchyNode, rootID uuid.UUID) []uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID, len(nodes))
	for _, n := range nodes {
		if n.ParentID == nil {
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n.ID)
	}

	var out []uuid.UUID
	seen := map[uuid.UUID]bool{rootID: true}
	queue := append([]uuid.UUID{}, children[rootID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out
}
