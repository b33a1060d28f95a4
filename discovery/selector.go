// Package discovery resolves discovery requests into executable test plans.
// The actual scanning of candidate sources is delegated to a pluggable Source;
// the engine owns ordering, filtering, deduplication and plan assembly.
package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// SelectorKind names the kind of scan target a selector describes.
type SelectorKind string

const (
	// SelectNamespace scans a namespace for structurally matching containers.
	SelectNamespace SelectorKind = "namespace"
	// SelectUnit names one explicit container.
	SelectUnit SelectorKind = "unit"
)

// Selector is an opaque descriptor of what to discover. The textual form is
// "<kind>:<value>", e.g. "namespace:core" or "unit:arithmetic".
type Selector struct {
	Kind  SelectorKind
	Value string
}

func (s Selector) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Value)
}

// ParseSelector parses the textual selector form. Opaque syntax the engine
// cannot resolve is a discovery error; a selector that later matches zero
// candidates is not.
func ParseSelector(raw string) (Selector, error) {
	kind, value, ok := strings.Cut(raw, ":")
	if !ok {
		return Selector{}, Discoveryf("malformed selector %q, expected <kind>:<value>", raw)
	}
	if value == "" {
		return Selector{}, Discoveryf("malformed selector %q, empty value", raw)
	}
	switch SelectorKind(kind) {
	case SelectNamespace, SelectUnit:
		return Selector{Kind: SelectorKind(kind), Value: value}, nil
	default:
		return Selector{}, Discoveryf("malformed selector %q, unknown kind %q", raw, kind)
	}
}

// ParseSelectors parses a list of textual selectors, failing on the first
// malformed one.
func ParseSelectors(raw []string) ([]Selector, error) {
	selectors := make([]Selector, 0, len(raw))
	for _, r := range raw {
		sel, err := ParseSelector(r)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}

// Request is the discovery input: an ordered set of scan targets plus the
// predicates applied to candidates before they enter the plan.
type Request struct {
	Selectors []Selector
	Filters   []Filter
}

// Error is fatal to a Discover call: no partial plan is ever returned
// alongside one.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("discovery error: %s", e.Msg)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Discoveryf creates a new discovery Error with a formatted message.
func Discoveryf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// WrapDiscovery wraps err into a discovery Error with context.
func WrapDiscovery(err error, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsDiscoveryError checks if the error is or wraps a discovery Error.
func IsDiscoveryError(err error) bool {
	var discErr *Error
	return err != nil && errors.As(err, &discErr)
}
