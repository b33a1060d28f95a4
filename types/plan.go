package types

import "time"

// TestPlan is the discovered tree of TestNodes for one discovery request.
// Exactly one root per plan; the root has no parent. The tree is sealed on
// construction and structurally immutable from then on.
type TestPlan struct {
	EngineID  string
	Root      *TestNode
	CreatedAt time.Time
}

// NewTestPlan wraps a discovered root container into a plan and seals the
// tree. The root must be an unattached container whose id carries the engine
// segment.
func NewTestPlan(engineID string, root *TestNode) (*TestPlan, error) {
	if root == nil {
		return nil, Structuref("plan requires a root container")
	}
	if !root.IsContainer() {
		return nil, Structuref("plan root %s must be a container", root.ID)
	}
	if root.Parent != nil {
		return nil, Structuref("plan root %s must not have a parent", root.ID)
	}
	if !root.ID.Equal(NewRootID(engineID)) {
		return nil, Structuref("plan root id %s does not match engine %q", root.ID, engineID)
	}
	root.Seal()
	return &TestPlan{
		EngineID:  engineID,
		Root:      root,
		CreatedAt: time.Now(),
	}, nil
}

// Walk traverses the plan depth-first in stored child order.
func (p *TestPlan) Walk(visitor func(*TestNode) bool) {
	p.Root.Walk(visitor)
}

// CountContainers returns the number of containers in the plan, the root
// included.
func (p *TestPlan) CountContainers() int {
	return p.Root.CountContainers() + 1
}

// CountLeaves returns the number of leaves in the plan.
func (p *TestPlan) CountLeaves() int {
	return p.Root.CountLeaves()
}

// FindNode returns the node with the given id, or nil.
func (p *TestPlan) FindNode(id NodeID) *TestNode {
	var found *TestNode
	p.Walk(func(node *TestNode) bool {
		if found != nil {
			return false
		}
		if node.ID.Equal(id) {
			found = node
			return false
		}
		return true
	})
	return found
}
