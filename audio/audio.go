// Package audio parses the payload of RTMP Audio messages, which carry FLV audio tag bodies.
package audio

import "github.com/torresjeff/rtmp-ingest/av"

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf
// and the Enhanced RTMP v2 spec: https://github.com/veovera/enhanced-rtmp

type Format uint8

const (
	LinearPCMPlatformEndian Format = 0
	ADPCM                   Format = 1
	MP3                     Format = 2
	LinearPCMLittleEndian   Format = 3
	Nellymoser16KHzMono     Format = 4
	Nellymoser8KHzMono      Format = 5
	Nellymoser              Format = 6
	G711AlawLogPCM          Format = 7
	G711MulawLogPCM         Format = 8
	// ExHeader signals an enhanced audio tag, the codec is given by a FourCC instead.
	ExHeader            Format = 9
	AAC                 Format = 10
	Speex               Format = 11
	MP38KHz             Format = 14
	DeviceSpecificSound Format = 15
)

type SampleRate uint8

const (
	Rate5p5KHz SampleRate = 0
	Rate11KHz  SampleRate = 1
	Rate22KHz  SampleRate = 2
	Rate44KHz  SampleRate = 3
)

type SampleSize uint8

const (
	Size8Bit  SampleSize = 0
	Size16Bit SampleSize = 1
)

type Channel uint8

const (
	Mono   Channel = 0
	Stereo Channel = 1
)

type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

type PacketType uint8

const (
	PacketTypeSequenceStart      PacketType = 0
	PacketTypeCodedFrames        PacketType = 1
	PacketTypeSequenceEnd        PacketType = 2
	PacketTypeMultichannelConfig PacketType = 4
	PacketTypeMultitrack         PacketType = 5
	PacketTypeModEx              PacketType = 7
)

var (
	FourCCAC3  = av.FourCC{'a', 'c', '-', '3'}
	FourCCEAC3 = av.FourCC{'e', 'c', '-', '3'}
	FourCCOpus = av.FourCC{'O', 'p', 'u', 's'}
	FourCCMP3  = av.FourCC{'.', 'm', 'p', '3'}
	FourCCFLAC = av.FourCC{'f', 'L', 'a', 'C'}
	FourCCAAC  = av.FourCC{'m', 'p', '4', 'a'}
)

type ChannelOrder uint8

const (
	ChannelOrderUnspecified ChannelOrder = 0
	ChannelOrderNative      ChannelOrder = 1
	ChannelOrderCustom      ChannelOrder = 2
)

// MultichannelConfig describes the speaker layout of an enhanced audio stream.
// Channels is set for ChannelOrderCustom, ChannelMask for ChannelOrderNative.
type MultichannelConfig struct {
	Order        ChannelOrder
	ChannelCount uint8
	Channels     []uint8
	ChannelMask  uint32
}

// Track is one audio track of an enhanced tag. Tags without a multitrack envelope have exactly one track with ID 0.
type Track struct {
	FourCC             av.FourCC
	ID                 uint8
	MultichannelConfig *MultichannelConfig
	Data               []byte
}

// Data is a parsed audio message.
type Data struct {
	Format Format

	// Legacy header fields.
	SampleRate    SampleRate
	SampleSize    SampleSize
	Channels      Channel
	AACPacketType AACPacketType

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

// IsSequenceHeader reports whether the tag carries decoder configuration rather than frames.
func (d *Data) IsSequenceHeader() bool {
	if d.Enhanced {
		return d.PacketType == PacketTypeSequenceStart
	}
	return d.Format == AAC && d.AACPacketType == AACSequenceHeader
}
