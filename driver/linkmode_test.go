package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkModes(t *testing.T) {
	lms, err := ParseLinkModes("c1, T1")
	require.NoError(t, err)
	assert.True(t, lms.Has(C1))
	assert.True(t, lms.Has(T1))
	assert.False(t, lms.Has(S1))
	assert.Equal(t, 2, lms.Count())
	assert.Equal(t, "c1,t1", lms.String())

	empty, err := ParseLinkModes("")
	require.NoError(t, err)
	assert.Zero(t, empty)
	assert.Equal(t, "none", empty.String())

	_, err = ParseLinkModes("c1,x9")
	assert.ErrorIs(t, err, ErrLinkModeUnsupported)
}

func TestLinkModeSetSupports(t *testing.T) {
	assert.True(t, CULSupportedLinkModes.Supports(NewLinkModeSet(S1)))
	assert.False(t, NewLinkModeSet(C1).Supports(NewLinkModeSet(C1, T1)))
	assert.True(t, NewLinkModeSet(Any).Supports(AllLinkModes))
	assert.Equal(t, "linkmode(7)", LinkMode(7).String())
}
