package discovery

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/crucible-dev/crucible/types"
)

// DefaultEngineID is the engine segment value used when a Config leaves the
// id empty.
const DefaultEngineID = "crucible"

// Config holds configuration for creating a discovery Engine.
type Config struct {
	EngineID string
	Source   Source
	Log      zerolog.Logger
}

// Engine turns a discovery Request into a TestPlan.
type Engine struct {
	engineID string
	source   Source
	log      zerolog.Logger
}

// NewEngine creates a new discovery engine instance.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.EngineID == "" {
		cfg.EngineID = DefaultEngineID
	}
	return &Engine{
		engineID: cfg.EngineID,
		source:   cfg.Source,
		log:      cfg.Log.With().Str("component", "discovery").Logger(),
	}, nil
}

// Discover resolves the request into a plan. Candidate containers are added
// in lexicographic name order per selector, their leaves in lexicographic
// name order per container, so repeated discovery over an unchanged source
// yields an identical plan. Containers resolved by more than one selector are
// added once; the second match is a no-op. Any malformed selector or filter,
// and any Source failure, fails the whole call: a partially resolved plan is
// unsafe to execute.
func (e *Engine) Discover(req Request) (*types.TestPlan, error) {
	for _, f := range req.Filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	root := types.NewContainer(types.NewRootID(e.engineID), e.engineID, "engine root")
	seen := make(map[string]bool)

	for _, sel := range req.Selectors {
		if err := e.resolveSelector(root, sel, req.Filters, seen); err != nil {
			return nil, err
		}
	}

	plan, err := types.NewTestPlan(e.engineID, root)
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Int("selectors", len(req.Selectors)).
		Int("containers", plan.CountContainers()-1).
		Int("leaves", plan.CountLeaves()).
		Msg("discovery complete")
	return plan, nil
}

func (e *Engine) resolveSelector(root *types.TestNode, sel Selector, filters []Filter, seen map[string]bool) error {
	switch sel.Kind {
	case SelectNamespace:
		defs, err := e.source.ContainersIn(sel.Value)
		if err != nil {
			return WrapDiscovery(err, "resolving selector %s", sel)
		}
		sorted := make([]ContainerDef, len(defs))
		copy(sorted, defs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		for _, def := range sorted {
			if err := e.addContainer(root, def, filters, seen); err != nil {
				return err
			}
		}
		return nil

	case SelectUnit:
		def, err := e.source.Container(sel.Value)
		if err != nil {
			return WrapDiscovery(err, "resolving selector %s", sel)
		}
		if def == nil {
			// Zero candidates is an empty contribution, not an error.
			e.log.Debug().Stringer("selector", sel).Msg("selector matched nothing")
			return nil
		}
		return e.addContainer(root, *def, filters, seen)

	default:
		return Discoveryf("cannot resolve selector of kind %q", sel.Kind)
	}
}

func (e *Engine) addContainer(root *types.TestNode, def ContainerDef, filters []Filter, seen map[string]bool) error {
	if !admitted(filters, types.KindContainer, def.Name) {
		return nil
	}

	id := root.ID.Append(types.SegmentContainer, def.Name)
	if seen[id.String()] {
		return nil
	}
	seen[id.String()] = true

	source := def.Source
	if source == "" {
		source = fmt.Sprintf("container %s", def.Name)
	}
	node := types.NewContainer(id, def.Name, source)

	leaves := make([]LeafDef, len(def.Leaves))
	copy(leaves, def.Leaves)
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Name < leaves[j].Name })

	for _, leaf := range leaves {
		if !admitted(filters, types.KindLeaf, leaf.Name) {
			continue
		}
		leafSource := leaf.Source
		if leafSource == "" {
			leafSource = fmt.Sprintf("unit %s defined in container %s", leaf.Name, def.Name)
		}
		leafNode := types.NewLeaf(id.Append(types.SegmentLeaf, leaf.Name), leaf.Name, leafSource, leaf.Action)
		leafNode.Timeout = leaf.Timeout
		if err := node.AddChild(leafNode); err != nil {
			return err
		}
	}

	return root.AddChild(node)
}
