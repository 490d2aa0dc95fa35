package rtmp

import "fmt"

type MessageType uint8

const (
	SetChunkSize MessageType = 1 + iota
	AbortMessage
	Acknowledgement
	UserControlMessage
	WindowAcknowledgementSize
	SetPeerBandwidth

	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

func (t MessageType) String() string {
	switch t {
	case SetChunkSize:
		return "SetChunkSize"
	case AbortMessage:
		return "Abort"
	case Acknowledgement:
		return "Acknowledgement"
	case UserControlMessage:
		return "UserControl"
	case WindowAcknowledgementSize:
		return "WindowAcknowledgementSize"
	case SetPeerBandwidth:
		return "SetPeerBandwidth"
	case AudioMessage:
		return "Audio"
	case VideoMessage:
		return "Video"
	case DataMessageAMF3:
		return "DataAMF3"
	case SharedObjectMessageAMF3:
		return "SharedObjectAMF3"
	case CommandMessageAMF3:
		return "CommandAMF3"
	case DataMessageAMF0:
		return "DataAMF0"
	case SharedObjectMessageAMF0:
		return "SharedObjectAMF0"
	case CommandMessageAMF0:
		return "CommandAMF0"
	case AggregateMessage:
		return "Aggregate"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// isProtocolControl reports whether t is one of the protocol control message types (1 to 6).
func (t MessageType) isProtocolControl() bool {
	return t >= SetChunkSize && t <= SetPeerBandwidth
}

// Chunk stream ids used for outbound messages.
const (
	ControlChunkStreamID uint32 = 2
	CommandChunkStreamID uint32 = 3
	AudioChunkStreamID   uint32 = 4
	VideoChunkStreamID   uint32 = 5
	DataChunkStreamID    uint32 = 6
)

// Message is a complete RTMP message as carried by the chunk stream.
// The timestamp is always the full 32-bit value; the chunk codec takes care of
// deltas and extended timestamps.
type Message struct {
	Type          MessageType
	ChunkStreamID uint32
	StreamID      uint32
	Timestamp     uint32
	Payload       []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(csid=%d, stream=%d, ts=%d, len=%d)", m.Type, m.ChunkStreamID, m.StreamID, m.Timestamp, len(m.Payload))
}
