// Package types contains the shared test unit model used across the crucible engine.
package types

import (
	"fmt"
	"strings"
)

// SegmentType names the kind of a NodeID segment. Engines sharing a root
// namespace must use segment types disjoint from the reserved values below.
type SegmentType string

const (
	SegmentEngine    SegmentType = "engine"
	SegmentNamespace SegmentType = "namespace"
	SegmentContainer SegmentType = "container"
	SegmentLeaf      SegmentType = "leaf"
)

// Segment is one (type, value) pair of a NodeID.
type Segment struct {
	Type  SegmentType
	Value string
}

func (s Segment) String() string {
	return fmt.Sprintf("[%s:%s]", s.Type, s.Value)
}

// NodeID identifies a node structurally: the parent's id plus exactly one
// trailing segment. Equality is defined over the canonical string form, which
// is also what discovery uses to deduplicate nodes across selectors.
type NodeID struct {
	segments []Segment
}

// NewRootID returns the engine-scoped root id for a plan.
func NewRootID(engineID string) NodeID {
	return NodeID{segments: []Segment{{Type: SegmentEngine, Value: engineID}}}
}

// Append returns a new id extending this one by a single segment. It is a pure
// function: the receiver is never mutated and the same inputs always yield the
// same id.
func (id NodeID) Append(typ SegmentType, value string) NodeID {
	segs := make([]Segment, len(id.segments), len(id.segments)+1)
	copy(segs, id.segments)
	return NodeID{segments: append(segs, Segment{Type: typ, Value: value})}
}

// Segments returns a copy of the id's segments in root-to-leaf order.
func (id NodeID) Segments() []Segment {
	segs := make([]Segment, len(id.segments))
	copy(segs, id.segments)
	return segs
}

// LastSegment returns the trailing segment, or a zero Segment for an empty id.
func (id NodeID) LastSegment() Segment {
	if len(id.segments) == 0 {
		return Segment{}
	}
	return id.segments[len(id.segments)-1]
}

// Depth returns the number of segments in the id.
func (id NodeID) Depth() int {
	return len(id.segments)
}

// String renders the canonical form, e.g.
// "[engine:crucible]/[container:arithmetic]/[leaf:will_pass]".
func (id NodeID) String() string {
	parts := make([]string, len(id.segments))
	for i, seg := range id.segments {
		parts[i] = seg.String()
	}
	return strings.Join(parts, "/")
}

// Equal reports whether two ids have identical segments.
func (id NodeID) Equal(other NodeID) bool {
	if len(id.segments) != len(other.segments) {
		return false
	}
	for i, seg := range id.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// ExtensionOf reports whether the id is a strict one-segment extension of
// parent. This is the structural invariant between a child node and its
// enclosing container.
func (id NodeID) ExtensionOf(parent NodeID) bool {
	if len(id.segments) != len(parent.segments)+1 {
		return false
	}
	for i, seg := range parent.segments {
		if id.segments[i] != seg {
			return false
		}
	}
	return true
}
