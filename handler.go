package rtmp

import (
	"context"
	"fmt"
)

// DataKind tells which kind of message a SessionData came from.
type DataKind uint8

const (
	AudioData DataKind = iota + 1
	VideoData
	Amf0Data
)

func (k DataKind) String() string {
	switch k {
	case AudioData:
		return "audio"
	case VideoData:
		return "video"
	case Amf0Data:
		return "amf0"
	default:
		return fmt.Sprintf("DataKind(%d)", uint8(k))
	}
}

// SessionData is a media or script data message received on a publishing stream.
// Payload is the raw message body: an FLV audio or video tag body, or AMF0 values.
type SessionData struct {
	Kind      DataKind
	Timestamp uint32
	Payload   []byte
}

// Handler receives the events of a publishing client. Calls are made from the session's
// goroutine, one at a time. A returned error closes the session.
type Handler interface {
	// OnPublish is called once per publish. An error denies it and the client is sent
	// NetStream.Publish.BadName.
	OnPublish(ctx context.Context, streamID uint32, app, name string) error
	OnUnpublish(ctx context.Context, streamID uint32) error
	OnData(ctx context.Context, streamID uint32, data SessionData) error
}

// UnknownCommandHandler is implemented by handlers that want commands the session does not
// interpret. Without it they are logged and ignored.
type UnknownCommandHandler interface {
	OnUnknownCommand(ctx context.Context, name string, values []interface{})
}

// UnknownMessageHandler is implemented by handlers that want messages of types the session
// does not interpret.
type UnknownMessageHandler interface {
	OnUnknownMessage(ctx context.Context, m *Message)
}

// HandlerFunc adapts a plain data callback into a Handler that accepts every publish.
type HandlerFunc func(ctx context.Context, streamID uint32, data SessionData) error

func (f HandlerFunc) OnPublish(context.Context, uint32, string, string) error { return nil }
func (f HandlerFunc) OnUnpublish(context.Context, uint32) error                 { return nil }

func (f HandlerFunc) OnData(ctx context.Context, streamID uint32, data SessionData) error {
	return f(ctx, streamID, data)
}
