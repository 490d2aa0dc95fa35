package rtmp

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// mediaServer receives decoded messages from the MessageManager. Session implements it.
type mediaServer interface {
	onSetChunkSize(size uint32) error
	onAbortMessage(chunkStreamID uint32)
	onAck(sequenceNumber uint32)
	onSetWindowAckSize(windowAckSize uint32)
	onSetPeerBandwidth(size uint32, limitType LimitType) error
	onUserControl(event *UserControl) error
	onCommand(ctx context.Context, msg *Message, cmd *Command) error
	onCommandError(ctx context.Context, msg *Message, err *CommandError) error
	onData(ctx context.Context, msg *Message, kind DataKind, payload []byte) error
	onUnknownMessage(ctx context.Context, msg *Message) error
}

// MessageManager reads whole messages from a MessageStream, decodes them and calls the
// matching mediaServer callback.
type MessageManager struct {
	stream *MessageStream
	server mediaServer
	logger *zap.Logger
}

func NewMessageManager(stream *MessageStream, server mediaServer, logger *zap.Logger) *MessageManager {
	return &MessageManager{
		stream: stream,
		server: server,
		logger: logger,
	}
}

// Initialize performs the handshake.
func (m *MessageManager) Initialize() error {
	return m.stream.Initialize()
}

// nextMessage reads one message and dispatches it.
func (m *MessageManager) nextMessage(ctx context.Context) error {
	msg, err := m.stream.NextMessage()
	if err != nil {
		return err
	}
	return m.interpretMessage(ctx, msg)
}

func (m *MessageManager) interpretMessage(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case SetChunkSize:
		var body ChunkSize
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		return m.server.onSetChunkSize(body.Size)
	case AbortMessage:
		var body Abort
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		m.server.onAbortMessage(body.ChunkStreamID)
		return nil
	case Acknowledgement:
		var body Ack
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		m.server.onAck(body.SequenceNumber)
		return nil
	case UserControlMessage:
		var body UserControl
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		return m.server.onUserControl(&body)
	case WindowAcknowledgementSize:
		var body WindowAckSize
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		m.server.onSetWindowAckSize(body.Size)
		return nil
	case SetPeerBandwidth:
		var body PeerBandwidth
		if err := body.UnmarshalRTMPMessage(msg.Payload); err != nil {
			return err
		}
		return m.server.onSetPeerBandwidth(body.Size, body.LimitType)
	case CommandMessageAMF0, CommandMessageAMF3:
		payload, err := amf0Body(msg)
		if err != nil {
			return m.server.onCommandError(ctx, msg, &CommandError{Err: err})
		}
		cmd, err := ParseCommand(payload)
		if err != nil {
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) {
				return m.server.onCommandError(ctx, msg, cmdErr)
			}
			return err
		}
		return m.server.onCommand(ctx, msg, cmd)
	case AudioMessage:
		return m.server.onData(ctx, msg, AudioData, msg.Payload)
	case VideoMessage:
		return m.server.onData(ctx, msg, VideoData, msg.Payload)
	case DataMessageAMF0, DataMessageAMF3:
		payload, err := amf0Body(msg)
		if err != nil {
			m.logger.Warn("dropping data message", zap.Error(err))
			return m.server.onUnknownMessage(ctx, msg)
		}
		return m.server.onData(ctx, msg, Amf0Data, payload)
	default:
		return m.server.onUnknownMessage(ctx, msg)
	}
}

// amf0Body strips the format byte AMF3 command and data messages start with. The rest is AMF0.
func amf0Body(msg *Message) ([]byte, error) {
	if msg.Type != CommandMessageAMF3 && msg.Type != DataMessageAMF3 {
		return msg.Payload, nil
	}
	if len(msg.Payload) == 0 {
		return nil, errors.Errorf("empty %s message", msg.Type)
	}
	if msg.Payload[0] != 0 {
		return nil, errors.Errorf("unsupported %s format byte 0x%02x", msg.Type, msg.Payload[0])
	}
	return msg.Payload[1:], nil
}

func (m *MessageManager) sendMessages(msgs ...*Message) error {
	return m.stream.SendMessages(msgs...)
}

func (m *MessageManager) sendWindowAckSize(size uint32) error {
	msg, err := generateWindowAckSizeMessage(size)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

func (m *MessageManager) sendPingResponse(timestamp uint32) error {
	msg, err := generatePingResponseMessage(timestamp)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

func (m *MessageManager) sendSetChunkSize(size uint32) error {
	return m.stream.SendChunkSize(size)
}

// sendConnectSequence sends the control messages that precede the connect _result.
func (m *MessageManager) sendConnectSequence(windowAckSize, peerBandwidth, chunkSize uint32) error {
	ack, err := generateWindowAckSizeMessage(windowAckSize)
	if err != nil {
		return err
	}
	bandwidth, err := generateSetPeerBandwidthMessage(peerBandwidth, LimitDynamic)
	if err != nil {
		return err
	}
	if err = m.sendMessages(ack, bandwidth); err != nil {
		return err
	}
	return m.sendSetChunkSize(chunkSize)
}

func (m *MessageManager) sendConnectSuccess(transactionID float64) error {
	msg, err := generateConnectResultMessage(transactionID)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

func (m *MessageManager) sendCreateStreamResponse(transactionID float64, streamID uint32) error {
	msg, err := generateCreateStreamResultMessage(transactionID, streamID)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

func (m *MessageManager) sendUndefinedResult(transactionID float64) error {
	msg, err := generateUndefinedResultMessage(transactionID)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

func (m *MessageManager) sendStatusMessage(streamID uint32, transactionID float64, status *OnStatus) error {
	msg, err := generateStatusMessage(streamID, transactionID, status)
	if err != nil {
		return err
	}
	return m.sendMessages(msg)
}

// sendPublishStart sends StreamBegin followed by NetStream.Publish.Start in one flush.
func (m *MessageManager) sendPublishStart(streamID uint32, transactionID float64, name string) error {
	begin, err := generateStreamBeginMessage(streamID)
	if err != nil {
		return err
	}
	status, err := generateStatusMessage(streamID, transactionID, &OnStatus{
		Level:       LevelStatus,
		Code:        NetStreamPublishStart,
		Description: name + " is now published.",
	})
	if err != nil {
		return err
	}
	return m.sendMessages(begin, status)
}
