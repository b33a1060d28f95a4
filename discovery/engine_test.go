package discovery

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/types"
)

// fakeSource is an in-memory Source for engine tests.
type fakeSource struct {
	namespaces map[string][]ContainerDef
	failWith   error
}

func (s *fakeSource) ContainersIn(namespace string) ([]ContainerDef, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.namespaces[namespace], nil
}

func (s *fakeSource) Container(name string) (*ContainerDef, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, defs := range s.namespaces {
		for _, def := range defs {
			if def.Name == name {
				d := def
				return &d, nil
			}
		}
	}
	return nil, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		namespaces: map[string][]ContainerDef{
			"core": {
				{
					Name: "strings",
					Leaves: []LeafDef{
						{Name: "split"},
						{Name: "concat"},
					},
				},
				{
					Name: "arithmetic",
					Leaves: []LeafDef{
						{Name: "subtraction"},
						{Name: "addition"},
					},
				},
			},
			"extra": {
				{
					Name:   "io",
					Leaves: []LeafDef{{Name: "read"}},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, source Source) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{Source: source, Log: zerolog.Nop()})
	require.NoError(t, err)
	return engine
}

func displayNames(plan *types.TestPlan) []string {
	var names []string
	plan.Walk(func(n *types.TestNode) bool {
		if n.Parent != nil {
			names = append(names, n.DisplayName)
		}
		return true
	})
	return names
}

func TestNewEngineRequiresSource(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)
}

func TestDiscoverNamespaceOrdering(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())

	plan, err := engine.Discover(Request{
		Selectors: []Selector{{Kind: SelectNamespace, Value: "core"}},
	})
	require.NoError(t, err)

	// Containers and their leaves come out in lexicographic name order.
	assert.Equal(t, []string{
		"arithmetic", "addition", "subtraction",
		"strings", "concat", "split",
	}, displayNames(plan))
	assert.Equal(t, 3, plan.CountContainers(), "root plus two discovered containers")
	assert.Equal(t, 4, plan.CountLeaves())
	assert.True(t, plan.Root.Sealed())
}

func TestDiscoverIsIdempotent(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())
	req := Request{Selectors: []Selector{
		{Kind: SelectNamespace, Value: "core"},
		{Kind: SelectUnit, Value: "io"},
	}}

	first, err := engine.Discover(req)
	require.NoError(t, err)
	second, err := engine.Discover(req)
	require.NoError(t, err)

	assert.Equal(t, displayNames(first), displayNames(second))
}

func TestDiscoverDeduplicatesAcrossSelectors(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())

	plan, err := engine.Discover(Request{Selectors: []Selector{
		{Kind: SelectNamespace, Value: "core"},
		{Kind: SelectUnit, Value: "arithmetic"},
		{Kind: SelectUnit, Value: "arithmetic"},
	}})
	require.NoError(t, err)

	count := 0
	plan.Walk(func(n *types.TestNode) bool {
		if n.DisplayName == "arithmetic" {
			count++
		}
		return true
	})
	assert.Equal(t, 1, count, "a container resolved by multiple selectors appears once")
}

func TestDiscoverZeroMatches(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())

	plan, err := engine.Discover(Request{Selectors: []Selector{
		{Kind: SelectNamespace, Value: "nonexistent"},
		{Kind: SelectUnit, Value: "nonexistent"},
	}})
	require.NoError(t, err, "zero candidates is an empty plan, not an error")
	assert.Equal(t, 0, plan.CountLeaves())
	assert.Empty(t, plan.Root.Children)
}

func TestDiscoverSourceFailureIsFatal(t *testing.T) {
	source := newFakeSource()
	source.failWith = errors.New("catalog unreadable")
	engine := newTestEngine(t, source)

	plan, err := engine.Discover(Request{Selectors: []Selector{
		{Kind: SelectNamespace, Value: "core"},
	}})
	require.Error(t, err)
	assert.True(t, IsDiscoveryError(err))
	assert.Nil(t, plan, "no partial plan on failure")
}

func TestDiscoverUnknownSelectorKind(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())

	_, err := engine.Discover(Request{Selectors: []Selector{
		{Kind: "regex", Value: "arith.*"},
	}})
	require.Error(t, err)
	assert.True(t, IsDiscoveryError(err))
}

func TestDiscoverAppliesFilters(t *testing.T) {
	engine := newTestEngine(t, newFakeSource())

	t.Run("include containers", func(t *testing.T) {
		plan, err := engine.Discover(Request{
			Selectors: []Selector{{Kind: SelectNamespace, Value: "core"}},
			Filters:   []Filter{IncludeNames(FilterContainers, "arith*")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"arithmetic", "addition", "subtraction"}, displayNames(plan))
	})

	t.Run("exclude leaves", func(t *testing.T) {
		plan, err := engine.Discover(Request{
			Selectors: []Selector{{Kind: SelectNamespace, Value: "core"}},
			Filters:   []Filter{ExcludeNames(FilterLeaves, "s*")},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"arithmetic", "addition", "strings", "concat"}, displayNames(plan))
	})

	t.Run("exclude wins over include", func(t *testing.T) {
		plan, err := engine.Discover(Request{
			Selectors: []Selector{{Kind: SelectNamespace, Value: "core"}},
			Filters: []Filter{{
				Scope:   FilterAll,
				Include: []string{"*"},
				Exclude: []string{"strings"},
			}},
		})
		require.NoError(t, err)
		assert.NotContains(t, displayNames(plan), "strings")
	})

	t.Run("malformed pattern is fatal", func(t *testing.T) {
		_, err := engine.Discover(Request{
			Selectors: []Selector{{Kind: SelectNamespace, Value: "core"}},
			Filters:   []Filter{IncludeNames(FilterAll, "[unterminated")},
		})
		require.Error(t, err)
		assert.True(t, IsDiscoveryError(err))
	})
}
