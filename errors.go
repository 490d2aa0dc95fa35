package rtmp

import (
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

var ErrNilWriter = errors.New("Expected *bufio.Writer to be non-nil, but got a nil value")
var ErrNilReader = errors.New("Expected *bufio.Reader to be non-nil, but got a nil value")

var (
	ErrPublishBeforeConnect = errors.New("rtmp: received a message before connect")
	ErrPlayNotSupported     = errors.New("rtmp: play is not supported")
	ErrTimeout              = errors.New("rtmp: timed out waiting for the peer")
	ErrServerClosed         = errors.New("rtmp: server closed")
	ErrReconnectNotAllowed  = errors.New("rtmp: peer did not advertise reconnect support")
)

// InvalidChunkSizeError is returned when the peer proposes a chunk size outside [1, 0x7FFFFFFF].
type InvalidChunkSizeError struct {
	Size uint32
}

func (e *InvalidChunkSizeError) Error() string {
	return fmt.Sprintf("rtmp: invalid chunk size %d", e.Size)
}

// ChunkReadErrorKind enumerates the fatal chunk stream decode failures.
type ChunkReadErrorKind uint8

const (
	MissingPreviousChunkHeader ChunkReadErrorKind = iota + 1
	InvalidChunkType
	TooManyPartialChunks
	TooManyPreviousChunkHeaders
	PartialChunkTooLarge
)

func (k ChunkReadErrorKind) String() string {
	switch k {
	case MissingPreviousChunkHeader:
		return "MissingPreviousChunkHeader"
	case InvalidChunkType:
		return "InvalidChunkType"
	case TooManyPartialChunks:
		return "TooManyPartialChunks"
	case TooManyPreviousChunkHeaders:
		return "TooManyPreviousChunkHeaders"
	case PartialChunkTooLarge:
		return "PartialChunkTooLarge"
	default:
		return fmt.Sprintf("ChunkReadErrorKind(%d)", uint8(k))
	}
}

// ChunkReadError is a fatal chunk decode error. Only the fields relevant to Kind are set.
type ChunkReadError struct {
	Kind          ChunkReadErrorKind
	ChunkStreamID uint32
	ChunkType     uint8
	Size          int
}

func (e *ChunkReadError) Error() string {
	switch e.Kind {
	case MissingPreviousChunkHeader:
		return fmt.Sprintf("rtmp: chunk stream %d has no previous chunk header", e.ChunkStreamID)
	case InvalidChunkType:
		return fmt.Sprintf("rtmp: invalid chunk type %d", e.ChunkType)
	case TooManyPartialChunks:
		return "rtmp: too many partial chunks"
	case TooManyPreviousChunkHeaders:
		return "rtmp: too many previous chunk headers"
	case PartialChunkTooLarge:
		return fmt.Sprintf("rtmp: partial chunk too large: %d bytes", e.Size)
	default:
		return "rtmp: chunk read error " + e.Kind.String()
	}
}

// IsChunkReadError reports whether err is a ChunkReadError of the given kind.
func IsChunkReadError(err error, kind ChunkReadErrorKind) bool {
	var e *ChunkReadError
	return errors.As(err, &e) && e.Kind == kind
}

// CommandError wraps a failure decoding or handling a command message.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("rtmp: command: %v", e.Err)
	}
	return fmt.Sprintf("rtmp: command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Cause() error  { return e.Err }
func (e *CommandError) Unwrap() error { return e.Err }

// isClientClosed reports whether err means the peer went away rather than misbehaved.
func isClientClosed(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}
