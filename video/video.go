// Package video parses the payload of RTMP Video messages, which carry FLV video tag bodies.
package video

import "github.com/torresjeff/rtmp-ingest/av"

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf
// and the Enhanced RTMP v2 spec: https://github.com/veovera/enhanced-rtmp

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

// Command is carried by command frames.
type Command uint8

const (
	StartSeek Command = 0
	EndSeek   Command = 1
)

type PacketType uint8

const (
	PacketTypeSequenceStart        PacketType = 0
	PacketTypeCodedFrames          PacketType = 1
	PacketTypeSequenceEnd          PacketType = 2
	PacketTypeCodedFramesX         PacketType = 3
	PacketTypeMetadata             PacketType = 4
	PacketTypeMPEG2TSSequenceStart PacketType = 5
	PacketTypeMultitrack           PacketType = 6
	PacketTypeModEx                PacketType = 7
)

var (
	FourCCVP8  = av.FourCC{'v', 'p', '0', '8'}
	FourCCVP9  = av.FourCC{'v', 'p', '0', '9'}
	FourCCAV1  = av.FourCC{'a', 'v', '0', '1'}
	FourCCAVC  = av.FourCC{'a', 'v', 'c', '1'}
	FourCCHEVC = av.FourCC{'h', 'v', 'c', '1'}
)

// Track is one video track of an enhanced tag. Tags without a multitrack envelope have exactly one track with ID 0.
type Track struct {
	FourCC av.FourCC
	ID     uint8
	// CompositionTime is only present in CodedFrames packets of avc1 and hvc1.
	CompositionTime int32
	// Metadata holds the AMF0 values of a Metadata packet, e.g. "colorInfo" followed by an object.
	Metadata []interface{}
	Data     []byte
}

// Data is a parsed video message.
type Data struct {
	FrameType FrameType
	// HasCommand is set for command frames, Command holds the command byte.
	HasCommand bool
	Command    Command

	// Legacy header fields.
	Codec           Codec
	AVCPacketType   AVCPacketType
	CompositionTime int32

	// Enhanced header fields.
	Enhanced       bool
	PacketType     PacketType
	ModExs         []av.ModEx
	Multitrack     bool
	MultitrackType av.MultitrackType
	Tracks         []Track

	// Payload is the codec data of a legacy tag.
	Payload []byte
}

func (d *Data) IsKeyFrame() bool {
	return d.FrameType == KeyFrame || d.FrameType == GeneratedKeyFrame
}

// IsSequenceHeader reports whether the tag carries decoder configuration rather than frames.
func (d *Data) IsSequenceHeader() bool {
	if d.Enhanced {
		return d.PacketType == PacketTypeSequenceStart
	}
	return d.Codec == H264 && d.AVCPacketType == AVCSequenceHeader
}
