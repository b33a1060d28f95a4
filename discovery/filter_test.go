package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-dev/crucible/types"
)

func TestFilterAdmits(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		node   string
		want   bool
	}{
		{
			name:   "empty include admits everything",
			filter: Filter{Scope: FilterAll},
			node:   "anything",
			want:   true,
		},
		{
			name:   "include match",
			filter: IncludeNames(FilterAll, "arith*"),
			node:   "arithmetic",
			want:   true,
		},
		{
			name:   "include miss",
			filter: IncludeNames(FilterAll, "arith*"),
			node:   "strings",
			want:   false,
		},
		{
			name:   "exclude wins over include",
			filter: Filter{Scope: FilterAll, Include: []string{"*"}, Exclude: []string{"strings"}},
			node:   "strings",
			want:   false,
		},
		{
			name:   "doublestar pattern",
			filter: IncludeNames(FilterAll, "**/slow-*"),
			node:   "io/slow-read",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.admits(tt.node))
		})
	}
}

func TestFilterScoping(t *testing.T) {
	containerOnly := ExcludeNames(FilterContainers, "strings")
	assert.True(t, containerOnly.appliesTo(types.KindContainer))
	assert.False(t, containerOnly.appliesTo(types.KindLeaf))

	leafOnly := ExcludeNames(FilterLeaves, "slow")
	assert.False(t, leafOnly.appliesTo(types.KindContainer))
	assert.True(t, leafOnly.appliesTo(types.KindLeaf))

	// A leaf-scoped exclude never rejects a container of the same name.
	filters := []Filter{leafOnly}
	assert.True(t, admitted(filters, types.KindContainer, "slow"))
	assert.False(t, admitted(filters, types.KindLeaf, "slow"))
}

func TestFilterValidate(t *testing.T) {
	require.NoError(t, IncludeNames(FilterAll, "ok-*", "**/also-ok").Validate())

	err := IncludeNames(FilterAll, "[unterminated").Validate()
	require.Error(t, err)
	assert.True(t, IsDiscoveryError(err))

	err = ExcludeNames(FilterAll, "[bad").Validate()
	require.Error(t, err)
}
