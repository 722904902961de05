package aspath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathCompact(t *testing.T) {
	p := Path{1, 1, 2, 3, 3, 3, 1}
	require.Equal(t, Path{1, 2, 3, 1}, p.Compact())
	require.Equal(t, Path{1, 1, 2, 3, 3, 3, 1}, p, "compact must not modify the receiver")
	require.Nil(t, Path(nil).Compact())
}

func TestPathOriginAndReverse(t *testing.T) {
	p := Path{2497, 38040, 23969}
	origin, ok := p.Origin()
	require.True(t, ok)
	require.Equal(t, uint32(23969), origin)
	require.Equal(t, Path{23969, 38040, 2497}, p.Reversed())

	_, ok = Path{}.Origin()
	require.False(t, ok)
}

func TestPathKeyRoundTrip(t *testing.T) {
	p := Path{0, 1, 4294967295, 64271}
	require.Len(t, p.Key(), 16)
	require.Equal(t, p, FromKey(p.Key()))
	require.NotEqual(t, Path{1, 2}.Key(), Path{2, 1}.Key())
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("2497 38040  23969")
	require.NoError(t, err)
	require.Equal(t, Path{2497, 38040, 23969}, p)
	require.Equal(t, "2497 38040 23969", p.String())

	p, err = ParsePath("AS3303 AS12874")
	require.NoError(t, err)
	require.Equal(t, Path{3303, 12874}, p)

	_, err = ParsePath("   ")
	require.ErrorIs(t, err, ErrEmptyPath)

	_, err = ParsePath("12 x4")
	require.Error(t, err)

	_, err = ParsePath("4294967296")
	require.Error(t, err)
}
