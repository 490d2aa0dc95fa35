// Package flv reads and writes FLV files and decodes FLV script data.
// Audio and video tag bodies are decoded by the audio and video packages.
package flv

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the FLV file header without extra bytes.
	HeaderSize = 9
	// TagHeaderSize is the size of the header that precedes every tag body.
	TagHeaderSize = 11

	flagAudio = 0x04
	flagVideo = 0x01
)

var signature = [3]byte{'F', 'L', 'V'}

var ErrUnsupportedTagEncryption = errors.New("flv: tag encryption is not supported")

type InvalidSignatureError struct {
	Signature uint32
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("flv: invalid signature in header: 0x%x", e.Signature)
}

type InvalidDataOffsetError struct {
	Offset uint32
}

func (e *InvalidDataOffsetError) Error() string {
	return fmt.Sprintf("flv: invalid data offset: %d", e.Offset)
}

type TagType uint8

const (
	TagTypeAudio      TagType = 8
	TagTypeVideo      TagType = 9
	TagTypeScriptData TagType = 18
)

func (t TagType) String() string {
	switch t {
	case TagTypeAudio:
		return "audio"
	case TagTypeVideo:
		return "video"
	case TagTypeScriptData:
		return "script"
	default:
		return fmt.Sprintf("TagType(%d)", uint8(t))
	}
}

// Header is the FLV file header.
type Header struct {
	Version  uint8
	HasAudio bool
	HasVideo bool
	// Extra holds any bytes between the 9 byte header and the data offset.
	Extra []byte
}

// Tag is one FLV tag. Data is the tag body, which is the same as an RTMP media message payload.
type Tag struct {
	Type      TagType
	Timestamp uint32
	StreamID  uint32
	Data      []byte
}
