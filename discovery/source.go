package discovery

import (
	"time"

	"github.com/crucible-dev/crucible/types"
)

// Source is the pluggable candidate resolver a concrete engine supplies. It
// decides what "structurally matching" means for its universe: a registry
// backed by a catalog file, a reflection scan, a directory walk. Container
// names must be unique across the whole source; the engine keys deduplication
// on the node ids derived from them.
//
// Source implementations must be side-effect free: resolving candidates never
// executes any test code.
type Source interface {
	// ContainersIn returns the containers defined in the given namespace.
	// An unknown namespace yields an empty contribution, not an error.
	ContainersIn(namespace string) ([]ContainerDef, error)

	// Container returns the container with the given name, or nil when the
	// source does not define it.
	Container(name string) (*ContainerDef, error)
}

// ContainerDef is a candidate container produced by a Source.
type ContainerDef struct {
	Name        string
	Description string
	Source      string // opaque locator for reporting
	Leaves      []LeafDef
}

// LeafDef is a candidate leaf produced by a Source, already bound to its
// action.
type LeafDef struct {
	Name    string
	Source  string
	Timeout time.Duration // zero means use the runner default
	Action  types.LeafAction
}
