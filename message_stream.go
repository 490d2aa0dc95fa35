package rtmp

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
	"go.uber.org/zap"
)

type Stage uint8

const (
	waitingForHandshake Stage = iota
	handshakeCompleted
)

var ErrNextMessageWithoutHandshake = errors.New("NextMessage() was called before completing handshake")

// readSize is how much is requested from the transport per read.
const readSize = 4096

// MessageStream turns a connection into a stream of whole RTMP messages. It runs the
// handshake, reassembles inbound chunks, chunks outbound messages and acknowledges
// received bytes.
type MessageStream struct {
	logger      *zap.SugaredLogger
	handshaker  Handshaker
	reader      *Reader
	writer      WriteFlusher
	chunkReader *ChunkReader
	chunkWriter *ChunkWriter
	// writeMu serializes outbound messages; everything else belongs to the reading goroutine.
	writeMu sync.Mutex

	// buf holds received bytes not yet decoded into chunks.
	buf     []byte
	scratch []byte

	windowAckSize uint32
	// bytesReceived wraps around like the RTMP sequence number.
	bytesReceived uint32

	// stage represents the current state of the message stream. Initially set to waitingForHandshake.
	// An attempt to call NextMessage() in the message stream will result in an error if the stage is set to waitingForHandshake.
	stage Stage
}

func NewMessageStream(logger *zap.SugaredLogger, reader *Reader, writer WriteFlusher, handshaker Handshaker) *MessageStream {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MessageStream{
		logger:        logger,
		handshaker:    handshaker,
		reader:        reader,
		writer:        writer,
		chunkReader:   NewChunkReader(),
		chunkWriter:   NewChunkWriter(),
		scratch:       make([]byte, readSize),
		windowAckSize: config.DefaultClientWindowSize,
		stage:         waitingForHandshake,
	}
}

// Initialize performs the handshake and changes the internal state of the MessageStream to handshakeCompleted
func (ms *MessageStream) Initialize() error {
	err := ms.handshaker.Handshake(ms.reader, ms.writer)
	if err != nil {
		return err
	}
	ms.bytesReceived = uint32(ms.reader.ReadBytes())
	ms.stage = handshakeCompleted
	return nil
}

// NextMessage blocks until a whole message has been received.
// Acknowledgements fall due as bytes arrive and are sent before NextMessage returns.
func (ms *MessageStream) NextMessage() (*Message, error) {
	if ms.stage == waitingForHandshake {
		return nil, ErrNextMessageWithoutHandshake
	}

	for {
		c := bytesutil.NewCursor(ms.buf)
		msg, err := ms.chunkReader.ReadChunk(c)
		ms.consume(c.Pos())
		if err != nil {
			return nil, err
		}
		if msg != nil {
			ms.logger.Debugf("received message %s", msg)
			return msg, nil
		}

		n, err := ms.reader.ReadAvailable(ms.scratch)
		if n > 0 {
			ms.buf = append(ms.buf, ms.scratch[:n]...)
			if ackErr := ms.received(uint32(n)); ackErr != nil {
				return nil, ackErr
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// consume drops the first n bytes of the receive buffer.
func (ms *MessageStream) consume(n int) {
	if n == 0 {
		return
	}
	rest := copy(ms.buf, ms.buf[n:])
	ms.buf = ms.buf[:rest]
}

// received counts n freshly read bytes and sends an Acknowledgement when a window boundary is crossed.
func (ms *MessageStream) received(n uint32) error {
	window := ms.windowAckSize
	due := window > 0 && (ms.bytesReceived%window)+n >= window
	ms.bytesReceived += n
	if !due {
		return nil
	}
	ms.logger.Debugf("sending acknowledgement, sequence number %d", ms.bytesReceived)
	msg, err := generateAckMessage(ms.bytesReceived)
	if err != nil {
		return err
	}
	return ms.SendMessage(msg)
}

// SendMessage chunks and flushes msg.
func (ms *MessageStream) SendMessage(msg *Message) error {
	return ms.SendMessages(msg)
}

// SendMessages chunks every message and flushes once. It may be called from any goroutine.
func (ms *MessageStream) SendMessages(msgs ...*Message) error {
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()
	return ms.sendLocked(msgs...)
}

func (ms *MessageStream) sendLocked(msgs ...*Message) error {
	for _, msg := range msgs {
		ms.logger.Debugf("sending message %s", msg)
		if err := ms.chunkWriter.WriteMessage(ms.writer, msg); err != nil {
			return err
		}
	}
	return errors.Wrap(ms.writer.Flush(), "rtmp: flushing")
}

// SetReadChunkSize applies a chunk size announced by the peer.
func (ms *MessageStream) SetReadChunkSize(size uint32) error {
	if !ms.chunkReader.SetMaxChunkSize(size) {
		return &InvalidChunkSizeError{Size: size}
	}
	return nil
}

// SendChunkSize announces size to the peer and uses it for every message sent afterwards.
func (ms *MessageStream) SendChunkSize(size uint32) error {
	if size < 1 || size > MaxChunkSize {
		return &InvalidChunkSizeError{Size: size}
	}
	msg, err := generateSetChunkSizeMessage(size)
	if err != nil {
		return err
	}
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()
	if err = ms.sendLocked(msg); err != nil {
		return err
	}
	ms.chunkWriter.SetChunkSize(size)
	return nil
}

// AbortMessage drops the partial message on chunkStreamID.
func (ms *MessageStream) AbortMessage(chunkStreamID uint32) {
	ms.chunkReader.Abort(chunkStreamID)
}

func (ms *MessageStream) SetWindowAckSize(size uint32) {
	ms.windowAckSize = size
}

func (ms *MessageStream) BytesReceived() uint32 {
	return ms.bytesReceived
}
