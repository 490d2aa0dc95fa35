package rtmp

import (
	"bufio"
	"io"
	"sync/atomic"
)

type Writer struct {
	// n is first to keep it 64-bit aligned for atomic access.
	n uint64
	WriteFlusher

	writer *bufio.Writer
}

type WriteFlusher interface {
	io.Writer
	Flusher
}

type Flusher interface {
	Flush() error
}

func NewWriter(writer *bufio.Writer) (*Writer, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	return &Writer{writer: writer}, nil
}

// Write writes the contents of p into the underlying bufio.Writer.
// It returns the number of bytes written.
// If n < len(p), it also returns an error explaining
// why the write is short.
func (w *Writer) Write(p []byte) (n int, err error) {
	n, err = w.writer.Write(p)
	atomic.AddUint64(&w.n, uint64(n))
	return n, err
}

// Flush writes any buffered data in the underlying bufio.Writer.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// WrittenBytes returns the number of bytes accepted by Write so far. It may be called from
// any goroutine.
func (w *Writer) WrittenBytes() uint64 {
	return atomic.LoadUint64(&w.n)
}
