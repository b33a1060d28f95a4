package types

import (
	"context"
	"time"
)

// Kind discriminates the two node variants.
type Kind string

const (
	KindContainer Kind = "container"
	KindLeaf      Kind = "leaf"
)

// String implements the Stringer interface for Kind
func (k Kind) String() string {
	return string(k)
}

// LeafAction is the invocable behavior bound to a leaf node. A nil return is a
// successful run; an error built with Abortf marks the run aborted; any other
// error (or a panic) marks it failed.
type LeafAction func(ctx context.Context) error

// TestNode is a node of a test plan: either a container grouping other nodes
// or a leaf bound to one invocable action. Children are owned by their parent
// and kept in discovery order; that order is preserved through execution and
// reporting.
type TestNode struct {
	ID          NodeID
	DisplayName string
	Source      string // opaque locator, reporting only, never identity
	Parent      *TestNode
	Children    []*TestNode

	// Leaf-only fields.
	Action  LeafAction
	Timeout time.Duration // zero means use the runner default

	kind   Kind
	sealed bool
}

// NewContainer creates a container node with no children.
func NewContainer(id NodeID, displayName, source string) *TestNode {
	return &TestNode{
		ID:          id,
		DisplayName: displayName,
		Source:      source,
		kind:        KindContainer,
	}
}

// NewLeaf creates a leaf node bound to the given action.
func NewLeaf(id NodeID, displayName, source string, action LeafAction) *TestNode {
	return &TestNode{
		ID:          id,
		DisplayName: displayName,
		Source:      source,
		Action:      action,
		kind:        KindLeaf,
	}
}

// Kind returns the node variant.
func (n *TestNode) Kind() Kind {
	return n.kind
}

// IsContainer reports whether the node groups other nodes.
func (n *TestNode) IsContainer() bool {
	return n.kind == KindContainer
}

// IsLeaf reports whether the node is directly invocable.
func (n *TestNode) IsLeaf() bool {
	return n.kind == KindLeaf
}

// AddChild attaches child to the container. Ownership is single and exclusive:
// a node already attached anywhere cannot be attached again. The child's id
// must extend the container's id by exactly one segment and must not collide
// with a sibling. All violations are StructureErrors.
func (n *TestNode) AddChild(child *TestNode) error {
	if child == nil {
		return Structuref("cannot attach a nil node to %s", n.ID)
	}
	if n.kind != KindContainer {
		return Structuref("leaf %s cannot have children", n.ID)
	}
	if n.sealed {
		return Structuref("container %s is sealed, discovery for this subtree is complete", n.ID)
	}
	if child.Parent != nil {
		return Structuref("node %s is already attached to %s", child.ID, child.Parent.ID)
	}
	if !child.ID.ExtensionOf(n.ID) {
		return Structuref("id %s does not extend parent id %s", child.ID, n.ID)
	}
	for _, sibling := range n.Children {
		if sibling.ID.Equal(child.ID) {
			return Structuref("duplicate sibling id %s under %s", child.ID, n.ID)
		}
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	return nil
}

// Seal closes the children list of the node and its whole subtree. A sealed
// subtree is structurally immutable; execution relies on that.
func (n *TestNode) Seal() {
	n.sealed = true
	for _, child := range n.Children {
		child.Seal()
	}
}

// Sealed reports whether the node's children list has been closed.
func (n *TestNode) Sealed() bool {
	return n.sealed
}

// Walk traverses the subtree depth-first in stored child order, calling
// visitor for each node. Returning false stops descent into that node.
func (n *TestNode) Walk(visitor func(*TestNode) bool) {
	if !visitor(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visitor)
	}
}

// CountLeaves returns the number of leaf nodes in the subtree.
func (n *TestNode) CountLeaves() int {
	count := 0
	n.Walk(func(node *TestNode) bool {
		if node.IsLeaf() {
			count++
		}
		return true
	})
	return count
}

// CountContainers returns the number of container nodes in the subtree,
// excluding the root the count was asked on.
func (n *TestNode) CountContainers() int {
	count := 0
	n.Walk(func(node *TestNode) bool {
		if node != n && node.IsContainer() {
			count++
		}
		return true
	})
	return count
}
