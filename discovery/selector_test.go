package discovery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Selector
		wantErr bool
	}{
		{
			name: "namespace selector",
			raw:  "namespace:core",
			want: Selector{Kind: SelectNamespace, Value: "core"},
		},
		{
			name: "unit selector",
			raw:  "unit:arithmetic",
			want: Selector{Kind: SelectUnit, Value: "arithmetic"},
		},
		{
			name: "value containing colon",
			raw:  "unit:ns:sub",
			want: Selector{Kind: SelectUnit, Value: "ns:sub"},
		},
		{
			name:    "missing separator",
			raw:     "arithmetic",
			wantErr: true,
		},
		{
			name:    "empty value",
			raw:     "unit:",
			wantErr: true,
		},
		{
			name:    "unknown kind",
			raw:     "regex:arith.*",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelector(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsDiscoveryError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel)
			assert.Equal(t, tt.raw, sel.String())
		})
	}
}

func TestParseSelectorsFailsOnFirstMalformed(t *testing.T) {
	_, err := ParseSelectors([]string{"namespace:core", "bogus"})
	require.Error(t, err)
	assert.True(t, IsDiscoveryError(err))

	selectors, err := ParseSelectors(nil)
	require.NoError(t, err)
	assert.Empty(t, selectors)
}

func TestDiscoveryErrorWrapping(t *testing.T) {
	inner := errors.New("io failure")
	err := WrapDiscovery(inner, "resolving selector %s", Selector{Kind: SelectUnit, Value: "x"})

	assert.True(t, IsDiscoveryError(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "discovery error")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsDiscoveryError(wrapped))
	assert.False(t, IsDiscoveryError(errors.New("plain")))
	assert.False(t, IsDiscoveryError(nil))
}
