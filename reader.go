package rtmp

import (
	"bufio"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

type Reader struct {
	ReadByteReaderCounter

	reader      *bufio.Reader
	conn        readDeadliner
	idleTimeout time.Duration
	interrupted int32
	n           uint64
}

type ByteCounter interface {
	ReadBytes() uint64
}

type ByteReader interface {
	ReadByte() (byte, error)
}

// ReadByteReaderCounter is the interface that groups Reader, ByteReader, and ByteCounter interfaces.
type ReadByteReaderCounter interface {
	io.Reader
	ByteCounter
	ByteReader
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

func NewReader(reader *bufio.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// SetIdleTimeout makes every read fail with ErrTimeout when conn delivers nothing for d.
// A zero d disables the timeout.
func (r *Reader) SetIdleTimeout(conn readDeadliner, d time.Duration) {
	r.conn = conn
	r.idleTimeout = d
}

// Read reads exactly len(p) bytes from the underlying bufio.Reader into p.
// It returns the number of bytes copied and an error if fewer bytes were read.
// The error is EOF only if no bytes were read.
// If an EOF happens after reading some but not all the bytes,
// Read returns ErrUnexpectedEOF.
// On return, n == len(buf) if and only if err == nil.
func (r *Reader) Read(p []byte) (n int, err error) {
	for n < len(p) && err == nil {
		var nn int
		r.armDeadline()
		nn, err = r.reader.Read(p[n:])
		n += nn
	}
	r.n += uint64(n)
	if err == io.EOF && n > 0 && n < len(p) {
		err = io.ErrUnexpectedEOF
	}
	if n == len(p) {
		err = nil
	}
	return n, timeoutError(err)
}

// ReadAvailable reads whatever is available, at most len(p) bytes, blocking only until
// at least one byte arrives.
func (r *Reader) ReadAvailable(p []byte) (int, error) {
	r.armDeadline()
	n, err := r.reader.Read(p)
	r.n += uint64(n)
	return n, timeoutError(err)
}

// ReadByte reads and returns a single byte from the underlying bufio.Reader.
// If no byte is available, returns an error.
func (r *Reader) ReadByte() (byte, error) {
	r.armDeadline()
	b, err := r.reader.ReadByte()
	if err == nil {
		r.n++
	}

	return b, timeoutError(err)
}

// Returns the number of bytes read so far from the underlying bufio.Reader since the instantiation of the Reader.
func (r *Reader) ReadBytes() uint64 {
	return r.n
}

// Interrupt makes the pending read, and every read after it, fail with ErrTimeout.
// It may be called from any goroutine.
func (r *Reader) Interrupt() {
	atomic.StoreInt32(&r.interrupted, 1)
	if r.conn != nil {
		_ = r.conn.SetReadDeadline(time.Unix(1, 0))
	}
}

func (r *Reader) armDeadline() {
	if r.conn == nil {
		return
	}
	if r.idleTimeout > 0 && r.reader.Buffered() == 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.idleTimeout))
	}
	// Checked after arming so a concurrent Interrupt is never overwritten.
	if atomic.LoadInt32(&r.interrupted) == 1 {
		_ = r.conn.SetReadDeadline(time.Unix(1, 0))
	}
}

func timeoutError(err error) error {
	var netErr net.Error
	if err != nil && errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}
