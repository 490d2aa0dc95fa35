package rtmp

import (
	"io"

	"github.com/pkg/errors"
)

// maxMessageLength is the largest length the 24-bit message length field holds.
const maxMessageLength = 0xFFFFFF

// ChunkWriter splits outbound messages into chunks. Every message starts with a type 0
// chunk and continues with type 3 chunks, so the writer keeps no per chunk stream state.
type ChunkWriter struct {
	chunkSize uint32
}

func NewChunkWriter() *ChunkWriter {
	return &ChunkWriter{chunkSize: DefaultChunkSize}
}

func (w *ChunkWriter) ChunkSize() uint32 {
	return w.chunkSize
}

// SetChunkSize returns false when n is outside [1, MaxChunkSize].
func (w *ChunkWriter) SetChunkSize(n uint32) bool {
	if n < 1 || n > MaxChunkSize {
		return false
	}
	w.chunkSize = n
	return true
}

// AppendMessage appends the chunked form of msg to b.
func (w *ChunkWriter) AppendMessage(b []byte, msg *Message) []byte {
	chunkStreamID := msg.ChunkStreamID
	if chunkStreamID < 2 {
		chunkStreamID = defaultChunkStreamID(msg.Type)
	}
	extended := msg.Timestamp >= max24BitTimestamp

	b = appendBasicHeader(b, ChunkType0, chunkStreamID)
	b = appendType0MessageHeader(b, msg)

	payload := msg.Payload
	for {
		n := uint32(len(payload))
		if n > w.chunkSize {
			n = w.chunkSize
		}
		b = append(b, payload[:n]...)
		payload = payload[n:]
		if len(payload) == 0 {
			return b
		}
		b = appendBasicHeader(b, ChunkType3, chunkStreamID)
		if extended {
			b = appendExtendedTimestamp(b, msg.Timestamp)
		}
	}
}

// WriteMessage chunks msg into out. It does not flush.
func (w *ChunkWriter) WriteMessage(out io.Writer, msg *Message) error {
	if len(msg.Payload) > maxMessageLength {
		return errors.Errorf("rtmp: %s payload of %d bytes does not fit a chunk header", msg.Type, len(msg.Payload))
	}
	_, err := out.Write(w.AppendMessage(nil, msg))
	return errors.Wrapf(err, "rtmp: writing %s", msg.Type)
}

func defaultChunkStreamID(t MessageType) uint32 {
	switch {
	case t.isProtocolControl():
		return ControlChunkStreamID
	case t == AudioMessage:
		return AudioChunkStreamID
	case t == VideoMessage:
		return VideoChunkStreamID
	case t == DataMessageAMF0 || t == DataMessageAMF3:
		return DataChunkStreamID
	default:
		return CommandChunkStreamID
	}
}
