package network

import (
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/nanorem/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ancestor is one upline partner as seen by a snapshot, carrying the state
// the commission calculator needs for qualification checks.
type Ancestor struct {
	PartnerID      uuid.UUID
	Status         models.PartnerStatus
	PersonalVolume decimal.Decimal
	ActiveDownline int
}

type snapshotNode struct {
	id             uuid.UUID
	sponsorID      *uuid.UUID
	status         models.PartnerStatus
	personalVolume decimal.Decimal
	children       []uuid.UUID
}

// Snapshot is a point-in-time, in-memory copy of the sponsorship table.
// Taken inside the confirming transaction it gives the calculator a
// consistent ancestor walk even while partners are being reparented
// concurrently. All reads on a snapshot are side-effect free.
type Snapshot struct {
	nodes map[uuid.UUID]*snapshotNode
}

// Snapshot reads the entire partner table through tx and indexes it in
// memory. Pass the confirming transaction to pin the view to its read
// time, or nil to read through the service's own connection.
func (s *NetworkService) Snapshot(tx *gorm.DB) (*Snapshot, error) {
	if tx == nil {
		tx = s.db
	}
	var partners []models.Partner
	if err := tx.Select("id", "sponsor_id", "status", "total_procurement").Find(&partners).Error; err != nil {
		return nil, fmt.Errorf("error loading network snapshot: %w", err)
	}

	snap := &Snapshot{nodes: make(map[uuid.UUID]*snapshotNode, len(partners))}
	for _, p := range partners {
		snap.nodes[p.ID] = &snapshotNode{
			id:             p.ID,
			sponsorID:      p.SponsorID,
			status:         p.Status,
			personalVolume: p.TotalProcurement,
		}
	}
	for _, p := range partners {
		if p.SponsorID == nil {
			continue
		}
		if parent, ok := snap.nodes[*p.SponsorID]; ok {
			parent.children = append(parent.children, p.ID)
		}
	}
	return snap, nil
}

// Ancestors yields the upline chain of a partner, nearest first, stopping
// at maxDepth or the root, whichever comes first. The sequence is lazy and
// restartable; it never yields the partner itself. An unknown partner
// yields nothing.
func (s *Snapshot) Ancestors(partnerID uuid.UUID, maxDepth int) iter.Seq[Ancestor] {
	return func(yield func(Ancestor) bool) {
		node, ok := s.nodes[partnerID]
		if !ok {
			return
		}
		depth := 0
		current := node.sponsorID
		for current != nil && (maxDepth < 0 || depth < maxDepth) {
			ancestor, ok := s.nodes[*current]
			if !ok {
				return
			}
			if !yield(Ancestor{
				PartnerID:      ancestor.id,
				Status:         ancestor.status,
				PersonalVolume: ancestor.personalVolume,
				ActiveDownline: s.activeDownline(ancestor),
			}) {
				return
			}
			depth++
			current = ancestor.sponsorID
		}
	}
}

func (s *Snapshot) activeDownline(node *snapshotNode) int {
	count := 0
	for _, childID := range node.children {
		if child, ok := s.nodes[childID]; ok && child.status == models.PartnerStatusActive {
			count++
		}
	}
	return count
}

// DirectDownline returns the ids of a partner's direct children
func (s *Snapshot) DirectDownline(partnerID uuid.UUID) []uuid.UUID {
	node, ok := s.nodes[partnerID]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, len(node.children))
	copy(out, node.children)
	return out
}

// Downline returns all descendants of a partner in BFS order
func (s *Snapshot) Downline(partnerID uuid.UUID) []uuid.UUID {
	node, ok := s.nodes[partnerID]
	if !ok {
		return nil
	}
	var result []uuid.UUID
	queue := append([]uuid.UUID(nil), node.children...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		if child, ok := s.nodes[current]; ok {
			queue = append(queue, child.children...)
		}
	}
	return result
}

// NetworkSize returns the number of descendants below a partner
func (s *Snapshot) NetworkSize(partnerID uuid.UUID) int {
	return len(s.Downline(partnerID))
}

// NetworkDepth returns the depth of the deepest branch below a partner;
// zero when the partner has no downline
func (s *Snapshot) NetworkDepth(partnerID uuid.UUID) int {
	node, ok := s.nodes[partnerID]
	if !ok || len(node.children) == 0 {
		return 0
	}
	max := 0
	for _, childID := range node.children {
		if d := s.NetworkDepth(childID); d > max {
			max = d
		}
	}
	return 1 + max
}

// LevelPartners returns all partners exactly level edges below the given
// partner. Level 0 is the partner itself.
func (s *Snapshot) LevelPartners(partnerID uuid.UUID, level int) []uuid.UUID {
	if _, ok := s.nodes[partnerID]; !ok {
		return nil
	}
	current := []uuid.UUID{partnerID}
	for i := 0; i < level; i++ {
		var next []uuid.UUID
		for _, id := range current {
			if node, ok := s.nodes[id]; ok {
				next = append(next, node.children...)
			}
		}
		current = next
	}
	return current
}

// TreeNode is a nested view of a subtree, used by the network endpoints
type TreeNode struct {
	PartnerID uuid.UUID            `json:"partner_id"`
	Status    models.PartnerStatus `json:"status"`
	Children  []TreeNode           `json:"children"`
}

// Tree builds a nested representation of the subtree rooted at partnerID,
// limited to maxDepth levels below it. maxDepth < 0 means unlimited.
func (s *Snapshot) Tree(partnerID uuid.UUID, maxDepth int) (TreeNode, bool) {
	node, ok := s.nodes[partnerID]
	if !ok {
		return TreeNode{}, false
	}
	return s.buildTree(node, maxDepth), true
}

func (s *Snapshot) buildTree(node *snapshotNode, maxDepth int) TreeNode {
	tree := TreeNode{
		PartnerID: node.id,
		Status:    node.status,
		Children:  []TreeNode{},
	}
	if maxDepth == 0 {
		return tree
	}
	next := maxDepth - 1
	if maxDepth < 0 {
		next = -1
	}
	for _, childID := range node.children {
		if child, ok := s.nodes[childID]; ok {
			tree.Children = append(tree.Children, s.buildTree(child, next))
		}
	}
	return tree
}
