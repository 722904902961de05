package aspath

// Cursor is a forward-only reader over a byte slice. It never reads past the
// end of the slice it was built from; every read that would do so fails with
// ErrUnexpectedEndOfBuffer and leaves the position untouched.
type Cursor struct {
	buf  []byte
	next int
}

// NewCursor returns a cursor positioned at the first byte of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Advance returns the next byte and moves forward by one.
func (c *Cursor) Advance() (byte, error) {
	if c.AtEnd() {
		return 0, ErrUnexpectedEndOfBuffer
	}
	b := c.buf[c.next]
	c.next++
	return b, nil
}

// ReadUint16 reads two bytes as a big-endian integer.
func (c *Cursor) ReadUint16() (uint16, error) {
	if c.Remaining() < 2 {
		return 0, ErrUnexpectedEndOfBuffer
	}
	hi, _ := c.Advance()
	lo, _ := c.Advance()
	return uint16(hi)<<8 | uint16(lo), nil
}

// ReadUint32 reads four bytes as a big-endian integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, ErrUnexpectedEndOfBuffer
	}
	var v uint32
	for i := 0; i < 4; i++ {
		b, _ := c.Advance()
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// Skip moves forward n bytes without interpreting them.
func (c *Cursor) Skip(n int) error {
	if n < 0 || c.Remaining() < n {
		return ErrUnexpectedEndOfBuffer
	}
	c.next += n
	return nil
}

// Sub returns a cursor bounded to the next n bytes and moves this cursor past
// them, whatever the caller later does with the returned cursor.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	if n < 0 || c.Remaining() < n {
		return nil, ErrUnexpectedEndOfBuffer
	}
	sub := NewCursor(c.buf[c.next : c.next+n : c.next+n])
	c.next += n
	return sub, nil
}

// AtEnd reports whether every byte has been consumed.
func (c *Cursor) AtEnd() bool {
	return c.next >= len(c.buf)
}

// Remaining is the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.next
}

// Offset is the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.next
}
