package aspath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorReadUint32(t *testing.T) {
	c := NewCursor([]byte{0, 1, 2, 3, 4})

	v, err := c.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(66051), v)
	require.Equal(t, 4, c.Offset())
	require.Equal(t, 1, c.Remaining())

	_, err = c.ReadUint32()
	require.ErrorIs(t, err, ErrUnexpectedEndOfBuffer)
	require.Equal(t, 4, c.Offset(), "failed read must not move the cursor")

	b, err := c.Advance()
	require.NoError(t, err)
	require.Equal(t, byte(4), b)
	require.True(t, c.AtEnd())

	_, err = c.Advance()
	require.ErrorIs(t, err, ErrUnexpectedEndOfBuffer)
}

func TestCursorReadUint16(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03})
	v, err := c.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), v)

	_, err = c.ReadUint16()
	require.ErrorIs(t, err, ErrUnexpectedEndOfBuffer)
}

func TestCursorSubRealigns(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, c.Skip(1))

	sub, err := c.Sub(3)
	require.NoError(t, err)
	require.Equal(t, 4, c.Offset())

	// Reading only part of the sub cursor leaves the parent where it was.
	b, err := sub.Advance()
	require.NoError(t, err)
	require.Equal(t, byte(2), b)

	// The sub cursor cannot see past its bound.
	require.NoError(t, sub.Skip(2))
	_, err = sub.Advance()
	require.ErrorIs(t, err, ErrUnexpectedEndOfBuffer)

	b, err = c.Advance()
	require.NoError(t, err)
	require.Equal(t, byte(5), b)

	_, err = c.Sub(2)
	require.ErrorIs(t, err, ErrUnexpectedEndOfBuffer)
}

func TestCursorSkip(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	require.ErrorIs(t, c.Skip(3), ErrUnexpectedEndOfBuffer)
	require.ErrorIs(t, c.Skip(-1), ErrUnexpectedEndOfBuffer)
	require.NoError(t, c.Skip(2))
	require.True(t, c.AtEnd())
	require.NoError(t, c.Skip(0))
}
