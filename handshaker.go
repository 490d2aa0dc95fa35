package rtmp

import "io"

// Handshaker runs the handshake on a fresh connection. Everything read after it returns
// belongs to the chunk stream.
type Handshaker interface {
	Handshake(reader io.Reader, writer WriteFlusher) error
}

var _ Handshaker = (*ServerHandshaker)(nil)
