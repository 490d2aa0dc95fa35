package rtmp

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

// readAll decodes every message in b, failing the test on errors or leftover bytes.
func readAll(t *testing.T, r *ChunkReader, b []byte) []*Message {
	t.Helper()
	c := bytesutil.NewCursor(b)
	var msgs []*Message
	for c.HasRemaining() {
		msg, err := r.ReadChunk(c)
		if err != nil {
			t.Fatalf("ReadChunk() error = %v", err)
		}
		if msg == nil {
			t.Fatalf("ReadChunk() stopped with %d bytes left", c.Len())
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func sameMessage(got, want *Message) bool {
	return got.Type == want.Type &&
		got.ChunkStreamID == want.ChunkStreamID &&
		got.StreamID == want.StreamID &&
		got.Timestamp == want.Timestamp &&
		bytes.Equal(got.Payload, want.Payload)
}

func TestChunkRoundTrip(t *testing.T) {
	msgs := []*Message{
		{Type: CommandMessageAMF0, ChunkStreamID: 3, StreamID: 0, Timestamp: 0, Payload: testPayload(0)},
		{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 23, Payload: testPayload(1)},
		{Type: VideoMessage, ChunkStreamID: 63, StreamID: 1, Timestamp: 0xFFFFFE, Payload: testPayload(300)},
		{Type: VideoMessage, ChunkStreamID: 64, StreamID: 1, Timestamp: 0xFFFFFF, Payload: testPayload(1000)},
		{Type: DataMessageAMF0, ChunkStreamID: 319, StreamID: 7, Timestamp: 0x12345678, Payload: testPayload(129)},
		{Type: AudioMessage, ChunkStreamID: 320, StreamID: 1, Timestamp: 40, Payload: testPayload(10000)},
		{Type: AudioMessage, ChunkStreamID: 65599, StreamID: 1, Timestamp: 80, Payload: testPayload(128)},
	}

	for _, size := range []uint32{1, 127, 128, 4096, 65536} {
		t.Run(fmt.Sprintf("chunk size %d", size), func(t *testing.T) {
			w := NewChunkWriter()
			r := NewChunkReader()
			if !w.SetChunkSize(size) || !r.SetMaxChunkSize(size) {
				t.Fatalf("SetChunkSize(%d) rejected", size)
			}
			var b []byte
			for _, msg := range msgs {
				b = w.AppendMessage(b, msg)
			}
			got := readAll(t, r, b)
			if len(got) != len(msgs) {
				t.Fatalf("got %d messages, want %d", len(got), len(msgs))
			}
			for i := range msgs {
				if !sameMessage(got[i], msgs[i]) {
					t.Errorf("message %d: got %s, want %s", i, got[i], msgs[i])
				}
			}
		})
	}
}

func TestChunkReaderByteAtATime(t *testing.T) {
	want := &Message{Type: VideoMessage, ChunkStreamID: 5, StreamID: 1, Timestamp: 0x01000000, Payload: testPayload(700)}
	b := NewChunkWriter().AppendMessage(nil, want)

	r := NewChunkReader()
	var buf []byte
	var got *Message
	for i, x := range b {
		buf = append(buf, x)
		c := bytesutil.NewCursor(buf)
		msg, err := r.ReadChunk(c)
		if err != nil {
			t.Fatalf("byte %d: ReadChunk() error = %v", i, err)
		}
		buf = buf[c.Pos():]
		if msg != nil {
			if i != len(b)-1 {
				t.Fatalf("message completed at byte %d of %d", i, len(b))
			}
			got = msg
		}
	}
	if got == nil || !sameMessage(got, want) {
		t.Fatalf("got %v, want %s", got, want)
	}
	if len(buf) != 0 {
		t.Errorf("%d bytes left over", len(buf))
	}
}

func TestChunkReaderRollsBackIncompleteChunk(t *testing.T) {
	msg := &Message{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Payload: testPayload(300)}
	b := NewChunkWriter().AppendMessage(nil, msg)
	// 1 + 11 header bytes and the first 128 bytes of payload form the first chunk.
	firstChunk := 1 + chunkType0MessageHeaderLength + DefaultChunkSize

	r := NewChunkReader()
	c := bytesutil.NewCursor(b[:firstChunk+50])
	got, err := r.ReadChunk(c)
	if err != nil || got != nil {
		t.Fatalf("ReadChunk() = %v, %v; want nil, nil", got, err)
	}
	if c.Pos() != firstChunk {
		t.Errorf("cursor at %d, want %d", c.Pos(), firstChunk)
	}

	got, err = r.ReadChunk(bytesutil.NewCursor(b[firstChunk:]))
	if err != nil {
		t.Fatalf("ReadChunk() error = %v", err)
	}
	if got == nil || !sameMessage(got, msg) {
		t.Errorf("got %v, want %s", got, msg)
	}
}

func TestChunkReaderHeaderTypes(t *testing.T) {
	b := []byte{
		// type 0, csid 4: ts 1000, length 3, audio, stream 1
		0x04, 0x00, 0x03, 0xE8, 0x00, 0x00, 0x03, 0x08, 0x01, 0x00, 0x00, 0x00, 'a', 'b', 'c',
		// type 2: delta 20
		0x84, 0x00, 0x00, 0x14, 'd', 'e', 'f',
		// type 3: a new message, same delta
		0xC4, 'g', 'h', 'i',
		// type 1: delta 10, length 2, video
		0x44, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x02, 0x09, 'j', 'k',
	}
	want := []*Message{
		{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 1000, Payload: []byte("abc")},
		{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 1020, Payload: []byte("def")},
		{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 1040, Payload: []byte("ghi")},
		{Type: VideoMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 1050, Payload: []byte("jk")},
	}
	got := readAll(t, NewChunkReader(), b)
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if !sameMessage(got[i], want[i]) {
			t.Errorf("message %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestChunkReaderErrors(t *testing.T) {
	partialHeader := func(csid byte) []byte {
		// type 0 header of a 200 byte message, followed by its first 128 byte chunk
		return append([]byte{csid, 0, 0, 0, 0, 0, 200, 0x08, 1, 0, 0, 0}, testPayload(DefaultChunkSize)...)
	}

	tests := []struct {
		name  string
		input []byte
		kind  ChunkReadErrorKind
	}{
		{"type 1 without previous header", []byte{0x44, 0, 0, 0, 0, 0, 1, 0x08, 'x'}, MissingPreviousChunkHeader},
		{"type 3 without previous header", []byte{0xC4, 'x'}, MissingPreviousChunkHeader},
		{"too many partial messages", bytes.Join([][]byte{
			partialHeader(3), partialHeader(4), partialHeader(5), partialHeader(6), partialHeader(7),
		}, nil), TooManyPartialChunks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChunkReader()
			c := bytesutil.NewCursor(tt.input)
			var err error
			for err == nil && c.HasRemaining() {
				_, err = r.ReadChunk(c)
			}
			if !IsChunkReadError(err, tt.kind) {
				t.Errorf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestChunkReaderPartialTooLarge(t *testing.T) {
	const chunkSize = 9 * 1024 * 1024
	r := NewChunkReader()
	r.SetMaxChunkSize(chunkSize)

	// Two messages of the largest length, each arriving as a first 9MiB chunk.
	first := []byte{0x04, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0x08, 1, 0, 0, 0}
	first = append(first, make([]byte, chunkSize)...)
	if msg, err := r.ReadChunk(bytesutil.NewCursor(first)); err != nil || msg != nil {
		t.Fatalf("first chunk: ReadChunk() = %v, %v", msg, err)
	}
	second := []byte{0x05, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0x09, 1, 0, 0, 0}
	_, err := r.ReadChunk(bytesutil.NewCursor(second))
	if !IsChunkReadError(err, PartialChunkTooLarge) {
		t.Errorf("error = %v, want PartialChunkTooLarge", err)
	}
}

func TestChunkReaderAbort(t *testing.T) {
	r := NewChunkReader()
	msg := &Message{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 10, Payload: testPayload(200)}
	b := NewChunkWriter().AppendMessage(nil, msg)
	firstChunk := 1 + chunkType0MessageHeaderLength + DefaultChunkSize

	if got, err := r.ReadChunk(bytesutil.NewCursor(b[:firstChunk])); err != nil || got != nil {
		t.Fatalf("ReadChunk() = %v, %v", got, err)
	}
	if r.partialBytes != DefaultChunkSize || len(r.partials) != 1 {
		t.Fatalf("partialBytes = %d, partials = %d", r.partialBytes, len(r.partials))
	}
	r.Abort(4)
	if r.partialBytes != 0 || len(r.partials) != 0 {
		t.Errorf("after Abort: partialBytes = %d, partials = %d", r.partialBytes, len(r.partials))
	}

	// The aborted message is gone; a complete new one on the same chunk stream decodes normally.
	next := &Message{Type: AudioMessage, ChunkStreamID: 4, StreamID: 1, Timestamp: 30, Payload: testPayload(20)}
	got := readAll(t, r, NewChunkWriter().AppendMessage(nil, next))
	if len(got) != 1 || !sameMessage(got[0], next) {
		t.Errorf("got %v, want %s", got, next)
	}
}

func TestBasicHeader(t *testing.T) {
	tests := []struct {
		csid uint32
		want []byte
	}{
		{2, []byte{0x02}},
		{63, []byte{0x3F}},
		{64, []byte{0x00, 0x00}},
		{319, []byte{0x00, 0xFF}},
		{320, []byte{0x01, 0x00, 0x01}},
		{65599, []byte{0x01, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.csid), func(t *testing.T) {
			b := appendBasicHeader(nil, ChunkType0, tt.csid)
			if !bytes.Equal(b, tt.want) {
				t.Errorf("appendBasicHeader(%d) = %x, want %x", tt.csid, b, tt.want)
			}
			chunkType, csid, err := readBasicHeader(bytesutil.NewCursor(b))
			if err != nil || chunkType != ChunkType0 || csid != tt.csid {
				t.Errorf("readBasicHeader() = %d, %d, %v", chunkType, csid, err)
			}
		})
	}
}

func TestChunkSizeLimits(t *testing.T) {
	tests := []struct {
		size uint32
		ok   bool
	}{
		{0, false},
		{1, true},
		{MaxChunkSize, true},
		{MaxChunkSize + 1, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.size), func(t *testing.T) {
			r := NewChunkReader()
			if got := r.SetMaxChunkSize(tt.size); got != tt.ok {
				t.Errorf("SetMaxChunkSize(%d) = %v, want %v", tt.size, got, tt.ok)
			}
			if !tt.ok && r.MaxChunkSize() != DefaultChunkSize {
				t.Errorf("rejected size changed MaxChunkSize to %d", r.MaxChunkSize())
			}
			if got := NewChunkWriter().SetChunkSize(tt.size); got != tt.ok {
				t.Errorf("SetChunkSize(%d) = %v, want %v", tt.size, got, tt.ok)
			}
		})
	}
}

func TestChunkReaderType3NewMessage(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []uint32
	}{
		{"after type 0 repeats the timestamp", []byte{
			0x04, 0x00, 0x00, 0x64, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 'a',
			0xC4, 'b',
			0xC4, 'c',
		}, []uint32{100, 100, 100}},
		{"after extended type 0 repeats the extended timestamp", []byte{
			0x04, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 'a',
			0xC4, 0x01, 0x00, 0x00, 0x00, 'b',
		}, []uint32{0x01000000, 0x01000000}},
		{"after type 2 adds the delta", []byte{
			0x04, 0x00, 0x00, 0x64, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 'a',
			0x84, 0x00, 0x00, 0x21, 'b',
			0xC4, 'c',
		}, []uint32{100, 133, 166}},
		{"after extended type 2 adds the extended delta", []byte{
			0x04, 0x00, 0x00, 0x64, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 'a',
			0x84, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00, 'b',
			0xC4, 0x01, 0x00, 0x00, 0x00, 'c',
		}, []uint32{100, 100 + 0x01000000, 100 + 0x02000000}},
		{"type 0 clears an earlier delta", []byte{
			0x04, 0x00, 0x00, 0x64, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 'a',
			0x84, 0x00, 0x00, 0x0A, 'b',
			0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00, 'c',
			0xC4, 'd',
		}, []uint32{100, 110, 256, 256}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, NewChunkReader(), tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d messages, want %d", len(got), len(tt.want))
			}
			for i, ts := range tt.want {
				if got[i].Timestamp != ts {
					t.Errorf("message %d: timestamp = %d, want %d", i, got[i].Timestamp, ts)
				}
			}
		})
	}
}

// fanoutChunkStreams returns one single chunk audio message on each of n chunk streams,
// starting at csid 64.
func fanoutChunkStreams(n int) []byte {
	w := NewChunkWriter()
	var b []byte
	for i := 0; i < n; i++ {
		b = w.AppendMessage(b, &Message{Type: AudioMessage, ChunkStreamID: uint32(64 + i), StreamID: 1, Payload: []byte{0xAF, 0x01}})
	}
	return b
}

func TestChunkReaderTooManyChunkStreams(t *testing.T) {
	r := NewChunkReader()
	c := bytesutil.NewCursor(fanoutChunkStreams(2000))

	decoded := 0
	var err error
	for c.HasRemaining() {
		var msg *Message
		if msg, err = r.ReadChunk(c); err != nil {
			break
		}
		if msg == nil {
			t.Fatalf("ReadChunk() stopped after %d messages", decoded)
		}
		decoded++
	}
	if !IsChunkReadError(err, TooManyPreviousChunkHeaders) {
		t.Fatalf("error = %v, want TooManyPreviousChunkHeaders", err)
	}
	if decoded != MaxChunkStreamIDs {
		t.Errorf("decoded %d messages before failing, want %d", decoded, MaxChunkStreamIDs)
	}
	if len(r.previous) != MaxChunkStreamIDs {
		t.Errorf("%d chunk streams remembered, want %d", len(r.previous), MaxChunkStreamIDs)
	}
	var readErr *ChunkReadError
	if errors.As(err, &readErr) && readErr.ChunkStreamID != 64+MaxChunkStreamIDs {
		t.Errorf("failed on chunk stream %d, want %d", readErr.ChunkStreamID, 64+MaxChunkStreamIDs)
	}
}
