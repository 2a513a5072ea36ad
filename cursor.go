package w3g

import (
	"bytes"
	"encoding/binary"
)

// cursor reads primitive values from a byte slice, advancing an offset.
//
// The first failing read is recorded and every later read is a no-op returning
// zero values, so a sequence of fixed reads needs a single error check at its end.
type cursor struct {
	data  []byte
	off   int
	order binary.ByteOrder
	err   error
}

func newCursor(data []byte, off int) *cursor {
	return &cursor{data: data, off: off, order: binary.LittleEndian}
}

// Err returns the first error encountered by the cursor.
func (c *cursor) Err() error {
	return c.err
}

// Offset returns the current position.
func (c *cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *cursor) Remaining() int {
	if c.off >= len(c.data) {
		return 0
	}
	return len(c.data) - c.off
}

// need checks that n more bytes are available, recording ErrTruncatedData if not.
func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off+n > len(c.data) {
		c.err = newError(ErrTruncatedData, c.off, "need %d bytes, have %d", n, c.Remaining())
		return false
	}
	return true
}

// Peek returns the next byte without consuming it.
func (c *cursor) Peek() byte {
	if !c.need(1) {
		return 0
	}
	return c.data[c.off]
}

func (c *cursor) Uint8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.data[c.off]
	c.off++
	return v
}

func (c *cursor) Uint16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := c.order.Uint16(c.data[c.off:])
	c.off += 2
	return v
}

func (c *cursor) Uint32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := c.order.Uint32(c.data[c.off:])
	c.off += 4
	return v
}

// Bytes returns the next n bytes. The returned slice aliases the underlying buffer.
func (c *cursor) Bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) Skip(n int) {
	if c.need(n) {
		c.off += n
	}
}

// String reads a null-terminated string, consuming the terminator.
func (c *cursor) String() string {
	if c.err != nil {
		return ""
	}
	i := bytes.IndexByte(c.data[c.off:], 0)
	if i < 0 {
		c.err = newError(ErrTruncatedData, c.off, "unterminated string")
		return ""
	}
	s := string(c.data[c.off : c.off+i])
	c.off += i + 1
	return s
}

// MaskedString reads a null-terminated string in the encoding used for the
// game settings section and returns the decoded bytes.
//
// Bytes come in groups of up to 8: the first byte of a group is a mask,
// and for each following byte at position i (1..7) of the group,
// if bit i of the mask is 0 the byte was stored incremented by one.
func (c *cursor) MaskedString() []byte {
	if c.err != nil {
		return nil
	}
	end := bytes.IndexByte(c.data[c.off:], 0)
	if end < 0 {
		c.err = newError(ErrTruncatedData, c.off, "unterminated encoded string")
		return nil
	}
	encoded := c.data[c.off : c.off+end]
	c.off += end + 1

	decoded := make([]byte, 0, len(encoded))
	var mask byte
	for i, b := range encoded {
		if i%8 == 0 {
			mask = b
			continue
		}
		if mask&(1<<uint(i%8)) == 0 {
			decoded = append(decoded, b-1)
		} else {
			decoded = append(decoded, b)
		}
	}
	return decoded
}
