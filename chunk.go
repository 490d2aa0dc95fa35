package rtmp

import (
	"encoding/binary"

	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

const (
	chunkType0MessageHeaderLength = 11
	chunkType1MessageHeaderLength = 7
	chunkType2MessageHeaderLength = 3

	extendedTimestampLength = 4
	max24BitTimestamp       = 0xFFFFFF
)

const (
	// DefaultChunkSize is the chunk size both peers start with.
	DefaultChunkSize = 128
	// MaxChunkSize is the largest chunk size a peer may negotiate. The high bit must be clear.
	MaxChunkSize = 0x7FFFFFFF

	// MaxChunkStreamIDs bounds the number of chunk streams a peer may open.
	MaxChunkStreamIDs = 1024
	// MaxPartialChunks bounds the number of messages being reassembled at once.
	MaxPartialChunks = 4
	// MaxPartialChunkSize bounds the bytes buffered across all partial messages.
	MaxPartialChunkSize = 16 * 1024 * 1024
)

// Chunk basic header:
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|fmt|   cs id   |
//	+-+-+-+-+-+-+-+-+
//
// A cs id of 0 means one more byte follows (ids 64-319), 1 means two more bytes follow
// (ids 64-65599, the second byte is the high byte). Ids 2-63 are encoded directly.
func appendBasicHeader(b []byte, chunkType ChunkType, chunkStreamID uint32) []byte {
	fmtBits := byte(chunkType) << 6
	switch {
	case chunkStreamID < 64:
		return append(b, fmtBits|byte(chunkStreamID))
	case chunkStreamID < 320:
		return append(b, fmtBits, byte(chunkStreamID-64))
	default:
		id := chunkStreamID - 64
		return append(b, fmtBits|1, byte(id), byte(id>>8))
	}
}

// appendType0MessageHeader appends the 11 byte message header and, when needed, the extended timestamp.
//
//	timestamp (3) | message length (3) | message type id (1) | message stream id (4, little endian)
func appendType0MessageHeader(b []byte, msg *Message) []byte {
	var h [chunkType0MessageHeaderLength]byte
	ts := msg.Timestamp
	if ts >= max24BitTimestamp {
		ts = max24BitTimestamp
	}
	binary24.BigEndian.PutUint24(h[0:3], ts)
	binary24.BigEndian.PutUint24(h[3:6], uint32(len(msg.Payload)))
	h[6] = byte(msg.Type)
	binary.LittleEndian.PutUint32(h[7:11], msg.StreamID)
	b = append(b, h[:]...)
	if msg.Timestamp >= max24BitTimestamp {
		b = appendExtendedTimestamp(b, msg.Timestamp)
	}
	return b
}

func appendExtendedTimestamp(b []byte, ts uint32) []byte {
	var ext [extendedTimestampLength]byte
	binary.BigEndian.PutUint32(ext[:], ts)
	return append(b, ext[:]...)
}
