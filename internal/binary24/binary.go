// Package binary24 reads and writes the 24-bit integers used by RTMP chunk headers and FLV tags.
package binary24

var BigEndian bigEndian

type bigEndian struct{}

func (bigEndian) Uint24(b []byte) uint32 {
	_ = b[2] // early bounds check
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}

// Int24 sign-extends a 24-bit two's complement value, as used by composition time offsets.
func (e bigEndian) Int24(b []byte) int32 {
	v := e.Uint24(b)
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}

func (bigEndian) PutUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func (e bigEndian) PutInt24(b []byte, v int32) {
	e.PutUint24(b, uint32(v)&0xFFFFFF)
}
