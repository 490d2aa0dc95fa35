package rtmp

type RTMPMessage interface {
	RTMPMessageMarshaler
	RTMPMessageUnmarshaler
}

type RTMPMessageMarshaler interface {
	MarshalRTMPMessage() (message []byte, err error)
}

type RTMPMessageUnmarshaler interface {
	UnmarshalRTMPMessage(message []byte) error
}

// typedMessage is a marshaler that knows which message type and chunk stream it travels on.
type typedMessage interface {
	RTMPMessageMarshaler
	messageType() MessageType
}

// newMessage marshals m into a Message on the given message stream.
func newMessage(m typedMessage, streamID uint32, timestamp uint32) (*Message, error) {
	payload, err := m.MarshalRTMPMessage()
	if err != nil {
		return nil, err
	}
	t := m.messageType()
	return &Message{
		Type:          t,
		ChunkStreamID: defaultChunkStreamID(t),
		StreamID:      streamID,
		Timestamp:     timestamp,
		Payload:       payload,
	}, nil
}
