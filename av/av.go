// Package av holds the pieces of Enhanced RTMP framing that audio and video tags share:
// FourCC codec identifiers, multitrack envelopes and ModEx blocks.
package av

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

var ErrNestedMultitracks = errors.New("av: nested multitracks are not allowed")

// InvalidModExDataError is returned when a ModEx block is shorter than its type requires.
type InvalidModExDataError struct {
	ExpectedBytes int
}

func (e *InvalidModExDataError) Error() string {
	return fmt.Sprintf("av: invalid modExData, expected at least %d bytes", e.ExpectedBytes)
}

// FourCC is a four byte ASCII codec identifier such as "hvc1" or "Opus".
type FourCC [4]byte

func (f FourCC) String() string {
	return string(f[:])
}

// Uint32 returns the FourCC as the big-endian number onMetaData uses for codec ids.
func (f FourCC) Uint32() uint32 {
	return uint32(f[0])<<24 | uint32(f[1])<<16 | uint32(f[2])<<8 | uint32(f[3])
}

func FourCCFromUint32(v uint32) FourCC {
	return FourCC{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func ReadFourCC(c *bytesutil.Cursor) (FourCC, error) {
	var f FourCC
	b, err := c.Next(4)
	if err != nil {
		return f, err
	}
	copy(f[:], b)
	return f, nil
}

type MultitrackType uint8

const (
	OneTrack             MultitrackType = 0
	ManyTracks           MultitrackType = 1
	ManyTracksManyCodecs MultitrackType = 2
)

func (m MultitrackType) String() string {
	switch m {
	case OneTrack:
		return "OneTrack"
	case ManyTracks:
		return "ManyTracks"
	case ManyTracksManyCodecs:
		return "ManyTracksManyCodecs"
	default:
		return fmt.Sprintf("MultitrackType(%d)", uint8(m))
	}
}

type ModExType uint8

const ModExTimestampOffsetNano ModExType = 0

// ModEx is a modifier extension block that precedes the actual packet type.
// For ModExTimestampOffsetNano, TimestampOffsetNano is set and Data holds the raw block.
type ModEx struct {
	Type                ModExType
	TimestampOffsetNano uint32
	Data                []byte
}

// ReadModEx reads one ModEx block and returns it with the packet type that follows it.
// The size is stored minus one in a u8; the value 256 switches to a u16 (also minus one).
func ReadModEx(c *bytesutil.Cursor) (ModEx, uint8, error) {
	size8, err := c.ReadU8()
	if err != nil {
		return ModEx{}, 0, err
	}
	size := int(size8) + 1
	if size == 256 {
		size16, err := c.ReadU16()
		if err != nil {
			return ModEx{}, 0, err
		}
		size = int(size16) + 1
	}
	data, err := c.Next(size)
	if err != nil {
		return ModEx{}, 0, err
	}
	next, err := c.ReadU8()
	if err != nil {
		return ModEx{}, 0, err
	}

	modEx := ModEx{Type: ModExType(next >> 4), Data: data}
	packetType := next & 0x0F
	if modEx.Type == ModExTimestampOffsetNano {
		if size < 3 {
			return ModEx{}, 0, &InvalidModExDataError{ExpectedBytes: 3}
		}
		modEx.TimestampOffsetNano = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	}
	return modEx, packetType, nil
}
