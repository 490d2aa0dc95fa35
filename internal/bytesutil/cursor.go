// Package bytesutil provides a bounds-checked cursor over an in-memory byte slice.
package bytesutil

import (
	"encoding/binary"
	"io"

	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

// Cursor reads big-endian integers and sub-slices from a byte slice.
// Every read past the end returns io.ErrUnexpectedEOF and leaves the position unchanged.
// Slices returned by Next alias the underlying buffer.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

func (c *Cursor) Pos() int { return c.pos }

// Seek moves the cursor back (or forward) to an absolute position previously returned by Pos.
func (c *Cursor) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.buf) {
		pos = len(c.buf)
	}
	c.pos = pos
}

func (c *Cursor) Len() int { return len(c.buf) - c.pos }

func (c *Cursor) HasRemaining() bool { return c.pos < len(c.buf) }

// Remaining consumes and returns every byte left.
func (c *Cursor) Remaining() []byte {
	b := c.buf[c.pos:]
	c.pos = len(c.buf)
	return b
}

func (c *Cursor) Next(n int) ([]byte, error) {
	if n < 0 || c.Len() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	if c.pos >= len(c.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) ReadU24() (uint32, error) {
	b, err := c.Next(3)
	if err != nil {
		return 0, err
	}
	return binary24.BigEndian.Uint24(b), nil
}

func (c *Cursor) ReadI24() (int32, error) {
	b, err := c.Next(3)
	if err != nil {
		return 0, err
	}
	return binary24.BigEndian.Int24(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU32LE reads a little-endian uint32, the byte order of the RTMP message stream id.
func (c *Cursor) ReadU32LE() (uint32, error) {
	b, err := c.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
