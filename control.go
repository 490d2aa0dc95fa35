package rtmp

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Protocol control messages (types 1 to 6) travel on message stream 0 and chunk stream 2.

// ChunkSize is the body of a Set Chunk Size message: a 31-bit size, the high bit is always zero.
type ChunkSize struct {
	Size uint32
}

func (m *ChunkSize) messageType() MessageType { return SetChunkSize }

func (m *ChunkSize) MarshalRTMPMessage() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Size&MaxChunkSize)
	return b, nil
}

func (m *ChunkSize) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 4 {
		return shortControlMessage(SetChunkSize, 4, len(b))
	}
	m.Size = binary.BigEndian.Uint32(b)
	return nil
}

// Abort tells the peer to discard the partial message on a chunk stream.
type Abort struct {
	ChunkStreamID uint32
}

func (m *Abort) messageType() MessageType { return AbortMessage }

func (m *Abort) MarshalRTMPMessage() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.ChunkStreamID)
	return b, nil
}

func (m *Abort) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 4 {
		return shortControlMessage(AbortMessage, 4, len(b))
	}
	m.ChunkStreamID = binary.BigEndian.Uint32(b)
	return nil
}

// Ack carries the number of bytes received so far.
type Ack struct {
	SequenceNumber uint32
}

func (m *Ack) messageType() MessageType { return Acknowledgement }

func (m *Ack) MarshalRTMPMessage() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.SequenceNumber)
	return b, nil
}

func (m *Ack) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 4 {
		return shortControlMessage(Acknowledgement, 4, len(b))
	}
	m.SequenceNumber = binary.BigEndian.Uint32(b)
	return nil
}

// WindowAckSize is the number of bytes the sender may receive before it expects an acknowledgement.
type WindowAckSize struct {
	Size uint32
}

func (m *WindowAckSize) messageType() MessageType { return WindowAcknowledgementSize }

func (m *WindowAckSize) MarshalRTMPMessage() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Size)
	return b, nil
}

func (m *WindowAckSize) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 4 {
		return shortControlMessage(WindowAcknowledgementSize, 4, len(b))
	}
	m.Size = binary.BigEndian.Uint32(b)
	return nil
}

type LimitType uint8

// 0 - Hard: The peer SHOULD limit its output bandwidth to the indicated window size.
// 1 - Soft: The peer SHOULD limit its output bandwidth to the window indicated in this message or the limit already in effect, whichever is smaller.
// 2 - Dynamic: If the previous Limit Type was Hard, treat this message as though it was marked Hard, otherwise ignore this message.
const (
	LimitHard LimitType = iota
	LimitSoft
	LimitDynamic
)

func (l LimitType) String() string {
	switch l {
	case LimitHard:
		return "hard"
	case LimitSoft:
		return "soft"
	case LimitDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("LimitType(%d)", uint8(l))
	}
}

// PeerBandwidth is the body of a Set Peer Bandwidth message.
type PeerBandwidth struct {
	Size      uint32
	LimitType LimitType
}

func (m *PeerBandwidth) messageType() MessageType { return SetPeerBandwidth }

func (m *PeerBandwidth) MarshalRTMPMessage() ([]byte, error) {
	b := make([]byte, 5)
	binary.BigEndian.PutUint32(b, m.Size)
	b[4] = byte(m.LimitType)
	return b, nil
}

func (m *PeerBandwidth) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 5 {
		return shortControlMessage(SetPeerBandwidth, 5, len(b))
	}
	m.Size = binary.BigEndian.Uint32(b)
	m.LimitType = LimitType(b[4])
	if m.LimitType > LimitDynamic {
		return errors.Errorf("rtmp: invalid peer bandwidth limit type %d", b[4])
	}
	return nil
}

type EventType uint16

const (
	EventStreamBegin      EventType = 0
	EventStreamEOF        EventType = 1
	EventStreamDry        EventType = 2
	EventSetBufferLength  EventType = 3
	EventStreamIsRecorded EventType = 4
	EventPingRequest      EventType = 6
	EventPingResponse     EventType = 7
)

func (e EventType) String() string {
	switch e {
	case EventStreamBegin:
		return "StreamBegin"
	case EventStreamEOF:
		return "StreamEOF"
	case EventStreamDry:
		return "StreamDry"
	case EventSetBufferLength:
		return "SetBufferLength"
	case EventStreamIsRecorded:
		return "StreamIsRecorded"
	case EventPingRequest:
		return "PingRequest"
	case EventPingResponse:
		return "PingResponse"
	default:
		return fmt.Sprintf("EventType(%d)", uint16(e))
	}
}

// UserControl is a User Control message:
//
//	event type (2) | event data
//
// Stream events carry a stream id, SetBufferLength adds a buffer length in milliseconds,
// ping events carry a timestamp.
type UserControl struct {
	Event        EventType
	StreamID     uint32
	BufferLength uint32
	Timestamp    uint32
}

func (m *UserControl) messageType() MessageType { return UserControlMessage }

func (m *UserControl) MarshalRTMPMessage() ([]byte, error) {
	switch m.Event {
	case EventStreamBegin, EventStreamEOF, EventStreamDry, EventStreamIsRecorded:
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b, uint16(m.Event))
		binary.BigEndian.PutUint32(b[2:], m.StreamID)
		return b, nil
	case EventSetBufferLength:
		b := make([]byte, 10)
		binary.BigEndian.PutUint16(b, uint16(m.Event))
		binary.BigEndian.PutUint32(b[2:], m.StreamID)
		binary.BigEndian.PutUint32(b[6:], m.BufferLength)
		return b, nil
	case EventPingRequest, EventPingResponse:
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b, uint16(m.Event))
		binary.BigEndian.PutUint32(b[2:], m.Timestamp)
		return b, nil
	default:
		return nil, errors.Errorf("rtmp: cannot marshal user control event %s", m.Event)
	}
}

func (m *UserControl) UnmarshalRTMPMessage(b []byte) error {
	if len(b) < 2 {
		return shortControlMessage(UserControlMessage, 2, len(b))
	}
	m.Event = EventType(binary.BigEndian.Uint16(b))
	data := b[2:]
	switch m.Event {
	case EventSetBufferLength:
		if len(data) < 8 {
			return shortControlMessage(UserControlMessage, 10, len(b))
		}
		m.StreamID = binary.BigEndian.Uint32(data)
		m.BufferLength = binary.BigEndian.Uint32(data[4:])
	case EventPingRequest, EventPingResponse:
		if len(data) < 4 {
			return shortControlMessage(UserControlMessage, 6, len(b))
		}
		m.Timestamp = binary.BigEndian.Uint32(data)
	default:
		// Unknown events are kept with whatever stream id they carry.
		if len(data) >= 4 {
			m.StreamID = binary.BigEndian.Uint32(data)
		}
	}
	return nil
}

func shortControlMessage(t MessageType, want, got int) error {
	return errors.Errorf("rtmp: %s message needs %d bytes, got %d", t, want, got)
}
