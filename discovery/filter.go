package discovery

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/crucible-dev/crucible/types"
)

// FilterScope restricts which node kinds a filter inspects.
type FilterScope string

const (
	FilterContainers FilterScope = "containers"
	FilterLeaves     FilterScope = "leaves"
	FilterAll        FilterScope = "all"
)

// Filter is a name-pattern predicate applied to candidates before they are
// added to the plan. Include patterns admit matching names (empty means admit
// everything); exclude patterns reject matching names and win over includes.
// Patterns use doublestar glob syntax.
type Filter struct {
	Scope   FilterScope
	Include []string
	Exclude []string
}

// IncludeNames builds a filter admitting only names matching one of patterns.
func IncludeNames(scope FilterScope, patterns ...string) Filter {
	return Filter{Scope: scope, Include: patterns}
}

// ExcludeNames builds a filter rejecting names matching one of patterns.
func ExcludeNames(scope FilterScope, patterns ...string) Filter {
	return Filter{Scope: scope, Exclude: patterns}
}

// Validate checks every pattern for syntax errors up front, so a malformed
// request fails the whole Discover call instead of misfiltering silently.
func (f Filter) Validate() error {
	for _, pattern := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return Discoveryf("malformed filter pattern %q", pattern)
		}
	}
	return nil
}

func (f Filter) appliesTo(kind types.Kind) bool {
	switch f.Scope {
	case FilterContainers:
		return kind == types.KindContainer
	case FilterLeaves:
		return kind == types.KindLeaf
	default:
		return true
	}
}

func (f Filter) admits(name string) bool {
	for _, pattern := range f.Exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// admitted applies every filter in order; a candidate enters the plan only if
// all filters scoped to its kind admit it.
func admitted(filters []Filter, kind types.Kind, name string) bool {
	for _, f := range filters {
		if !f.appliesTo(kind) {
			continue
		}
		if !f.admits(name) {
			return false
		}
	}
	return true
}
