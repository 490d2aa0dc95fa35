package rtmp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
	"go.uber.org/zap"
)

const testTimeout = 5 * time.Second

// recordingHandler reports every call as a string on events.
type recordingHandler struct {
	events chan string
	deny   error

	mu   sync.Mutex
	data []SessionData
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan string, 100)}
}

func (h *recordingHandler) OnPublish(_ context.Context, streamID uint32, app, name string) error {
	h.events <- fmt.Sprintf("publish %d %s/%s", streamID, app, name)
	return h.deny
}

func (h *recordingHandler) OnUnpublish(_ context.Context, streamID uint32) error {
	h.events <- fmt.Sprintf("unpublish %d", streamID)
	return nil
}

func (h *recordingHandler) OnData(_ context.Context, streamID uint32, data SessionData) error {
	h.mu.Lock()
	h.data = append(h.data, data)
	h.mu.Unlock()
	h.events <- fmt.Sprintf("data %d %s %d", streamID, data.Kind, data.Timestamp)
	return nil
}

func (h *recordingHandler) OnUnknownCommand(_ context.Context, name string, values []interface{}) {
	h.events <- fmt.Sprintf("command %s %d", name, len(values))
}

func (h *recordingHandler) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-h.events:
		if got != want {
			t.Fatalf("handler event = %q, want %q", got, want)
		}
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for handler event %q", want)
	}
}

// testClient drives a Session from the other end of a net.Pipe. Everything the server sends
// is decoded in the background so that its writes never block.
type testClient struct {
	conn    net.Conn
	writer  *ChunkWriter
	msgs    chan *Message
	written int
}

type testSession struct {
	*testClient
	session *Session
	handler *recordingHandler
	done    chan error
	cancel  context.CancelFunc
}

func startSession(t *testing.T, cfg SessionConfig) *testSession {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	handler := newRecordingHandler()
	if cfg.ID == "" {
		cfg.ID = "test-session"
	}
	session := NewSession(zap.NewNop(), serverConn, handler, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testSession{
		testClient: &testClient{conn: clientConn, writer: NewChunkWriter(), msgs: make(chan *Message, 100)},
		session:    session,
		handler:    handler,
		done:       make(chan error, 1),
		cancel:     cancel,
	}
	go func() { ts.done <- session.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		clientConn.Close()
	})

	ts.handshake(t)
	go ts.readLoop()
	return ts
}

func (c *testClient) handshake(t *testing.T) {
	t.Helper()
	c0c1 := make([]byte, 1+handshakePacketSize)
	c0c1[0] = RtmpVersion3
	c.write(t, c0c1)
	s0s1s2 := make([]byte, 1+2*handshakePacketSize)
	if _, err := io.ReadFull(c.conn, s0s1s2); err != nil {
		t.Fatalf("reading S0S1S2: %v", err)
	}
	c.write(t, make([]byte, handshakePacketSize))
}

func (c *testClient) write(t *testing.T, b []byte) {
	t.Helper()
	n, err := c.conn.Write(b)
	c.written += n
	if err != nil {
		t.Fatalf("client write: %v", err)
	}
}

func (c *testClient) readLoop() {
	defer close(c.msgs)
	r := NewChunkReader()
	var buf []byte
	scratch := make([]byte, 4096)
	for {
		n, err := c.conn.Read(scratch)
		buf = append(buf, scratch[:n]...)
		cur := bytesutil.NewCursor(buf)
		for {
			msg, decodeErr := r.ReadChunk(cur)
			if decodeErr != nil {
				return
			}
			if msg == nil {
				break
			}
			if msg.Type == SetChunkSize {
				var cs ChunkSize
				if cs.UnmarshalRTMPMessage(msg.Payload) == nil {
					r.SetMaxChunkSize(cs.Size)
				}
			}
			c.msgs <- msg
		}
		buf = append(buf[:0], buf[cur.Pos():]...)
		if err != nil {
			return
		}
	}
}

func (c *testClient) send(t *testing.T, msg *Message) {
	t.Helper()
	c.write(t, c.writer.AppendMessage(nil, msg))
}

func (c *testClient) sendControl(t *testing.T, m typedMessage) {
	t.Helper()
	msg, err := newMessage(m, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	c.send(t, msg)
}

func (c *testClient) command(t *testing.T, streamID uint32, values ...interface{}) {
	t.Helper()
	payload, err := amf0.EncodeAll(values...)
	if err != nil {
		t.Fatal(err)
	}
	c.send(t, &Message{Type: CommandMessageAMF0, ChunkStreamID: CommandChunkStreamID, StreamID: streamID, Payload: payload})
}

func (c *testClient) next(t *testing.T) *Message {
	t.Helper()
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			t.Fatal("server closed the connection")
		}
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a server message")
	}
	return nil
}

func (c *testClient) expectType(t *testing.T, typ MessageType) *Message {
	t.Helper()
	msg := c.next(t)
	if msg.Type != typ {
		t.Fatalf("got %s, want %s", msg, typ)
	}
	return msg
}

func (c *testClient) expectCommand(t *testing.T, name string) (*Message, []interface{}) {
	t.Helper()
	msg := c.expectType(t, CommandMessageAMF0)
	values, err := amf0.DecodeAll(msg.Payload)
	if err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if len(values) < 2 || values[0] != name {
		t.Fatalf("got command %v, want %s", values, name)
	}
	return msg, values
}

// expectStatus waits for an onStatus style command carrying code.
func (c *testClient) expectStatus(t *testing.T, name, code string) *Message {
	t.Helper()
	msg, values := c.expectCommand(t, name)
	if len(values) < 4 {
		t.Fatalf("%s has %d values", name, len(values))
	}
	info, _ := amf0.AsObject(values[3])
	if got, _ := info.String("code"); got != code {
		t.Fatalf("%s code = %q, want %q", name, got, code)
	}
	return msg
}

func (c *testClient) connect(t *testing.T, caps CapsEx) {
	t.Helper()
	obj := amf0.Object{
		{Key: "app", Value: "live"},
		{Key: "tcUrl", Value: "rtmp://localhost/live"},
		{Key: "flashVer", Value: "FMLE/3.0"},
	}
	if caps != 0 {
		obj = append(obj, amf0.Property{Key: "capsEx", Value: float64(caps)})
	}
	c.command(t, 0, "connect", 1.0, obj)

	var was WindowAckSize
	if err := was.UnmarshalRTMPMessage(c.expectType(t, WindowAcknowledgementSize).Payload); err != nil || was.Size != 5000000 {
		t.Fatalf("window ack size = %d, %v", was.Size, err)
	}
	var bw PeerBandwidth
	if err := bw.UnmarshalRTMPMessage(c.expectType(t, SetPeerBandwidth).Payload); err != nil || bw.Size != 5000000 || bw.LimitType != LimitDynamic {
		t.Fatalf("peer bandwidth = %+v, %v", bw, err)
	}
	var cs ChunkSize
	if err := cs.UnmarshalRTMPMessage(c.expectType(t, SetChunkSize).Payload); err != nil || cs.Size != 4096 {
		t.Fatalf("chunk size = %d, %v", cs.Size, err)
	}
	_, values := c.expectCommand(t, "_result")
	if values[1] != 1.0 {
		t.Errorf("connect _result transaction id = %v", values[1])
	}
	info, _ := amf0.AsObject(values[3])
	if code, _ := info.String("code"); code != NetConnectionConnectSuccess {
		t.Fatalf("connect code = %q", code)
	}
}

func (c *testClient) createStream(t *testing.T, txn float64) uint32 {
	t.Helper()
	c.command(t, 0, "createStream", txn, nil)
	_, values := c.expectCommand(t, "_result")
	if values[1] != txn {
		t.Errorf("createStream _result transaction id = %v, want %v", values[1], txn)
	}
	id, ok := values[3].(float64)
	if !ok {
		t.Fatalf("stream id is %T", values[3])
	}
	return uint32(id)
}

func (c *testClient) publish(t *testing.T, streamID uint32, name string) {
	t.Helper()
	c.command(t, streamID, "publish", 5.0, nil, name, "live")
	var begin UserControl
	if err := begin.UnmarshalRTMPMessage(c.expectType(t, UserControlMessage).Payload); err != nil ||
		begin.Event != EventStreamBegin || begin.StreamID != streamID {
		t.Fatalf("stream begin = %+v, %v", begin, err)
	}
	msg := c.expectStatus(t, "onStatus", NetStreamPublishStart)
	if msg.StreamID != streamID {
		t.Errorf("Publish.Start sent on stream %d, want %d", msg.StreamID, streamID)
	}
}

func (ts *testSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ts.done:
		return err
	case <-time.After(testTimeout):
		t.Fatal("session did not stop")
	}
	return nil
}

func TestSessionPublish(t *testing.T) {
	b := NewBroadcaster(nil)
	events, cancel := b.Subscribe()
	defer cancel()

	ts := startSession(t, SessionConfig{Broadcaster: b})
	ts.connect(t, 0)
	if ts.session.State() != StateConnected || ts.session.App() != "live" {
		t.Errorf("state = %s, app = %q", ts.session.State(), ts.session.App())
	}

	first := ts.createStream(t, 2)
	second := ts.createStream(t, 3)
	if first != 1 || second != 2 {
		t.Errorf("stream ids = %d, %d; want 1, 2", first, second)
	}

	ts.publish(t, first, "mystream")
	ts.handler.expect(t, "publish 1 live/mystream")
	if ts.session.State() != StatePublishing {
		t.Errorf("state = %s, want publishing", ts.session.State())
	}

	metadata, _ := amf0.EncodeAll("@setDataFrame", "onMetaData", amf0.Object{{Key: "width", Value: 1280.0}})
	ts.send(t, &Message{Type: DataMessageAMF0, ChunkStreamID: DataChunkStreamID, StreamID: first, Payload: metadata})
	ts.send(t, &Message{Type: VideoMessage, ChunkStreamID: VideoChunkStreamID, StreamID: first, Payload: []byte{0x17, 0, 0, 0, 0}})
	ts.send(t, &Message{Type: AudioMessage, ChunkStreamID: AudioChunkStreamID, StreamID: first, Timestamp: 23, Payload: testPayload(400)})
	// Not publishing: dropped.
	ts.send(t, &Message{Type: AudioMessage, ChunkStreamID: AudioChunkStreamID, StreamID: second, Timestamp: 30, Payload: []byte{0xAF, 1}})
	ts.handler.expect(t, "data 1 amf0 0")
	ts.handler.expect(t, "data 1 video 0")
	ts.handler.expect(t, "data 1 audio 23")

	ts.handler.mu.Lock()
	if got := ts.handler.data[0].Payload; string(got) != string(metadata) {
		t.Errorf("data payload = %x, want %x", got, metadata)
	}
	if got := len(ts.handler.data[2].Payload); got != 400 {
		t.Errorf("audio payload is %d bytes, want 400", got)
	}
	ts.handler.mu.Unlock()

	streams := b.Streams()
	if len(streams) != 1 || streams[0].AudioBytes != 400 || streams[0].VideoFrames != 1 || streams[0].SessionID != "test-session" {
		t.Errorf("Streams() = %+v", streams)
	}

	ts.command(t, 0, "deleteStream", 6.0, nil, float64(first))
	ts.handler.expect(t, "unpublish 1")
	ts.expectStatus(t, "onStatus", NetStreamDeleteStreamSuccess)
	if ts.session.State() != StateConnected {
		t.Errorf("state = %s, want connected", ts.session.State())
	}

	ts.conn.Close()
	if err := ts.wait(t); err != nil {
		t.Errorf("Start() = %v, want nil after the client closes", err)
	}
	if !ts.session.ClosedCleanly() {
		t.Error("ClosedCleanly() = false")
	}
	if sent := ts.session.BytesSent(); sent <= 1+2*handshakePacketSize {
		t.Errorf("BytesSent() = %d, want the handshake and the replies", sent)
	}
	if ts.session.State() != StateClosed {
		t.Errorf("state = %s, want closed", ts.session.State())
	}

	for _, want := range []StreamEventType{StreamPublished, StreamUnpublished} {
		select {
		case ev := <-events:
			if ev.Type != want || ev.Stream.Name != "mystream" {
				t.Errorf("event = %s %s, want %s", ev.Type, ev.Stream.Name, want)
			}
		default:
			t.Errorf("missing %s event", want)
		}
	}
}

func TestSessionFMLECommands(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, 0)

	ts.command(t, 0, "releaseStream", 2.0, nil, "mystream")
	_, values := ts.expectCommand(t, "_result")
	if len(values) != 4 || values[1] != 2.0 || values[2] != nil || values[3] != (amf0.Undefined{}) {
		t.Errorf("releaseStream result = %#v", values)
	}

	ts.command(t, 0, "FCPublish", 3.0, nil, "mystream")
	ts.expectCommand(t, "_result")
	ts.expectStatus(t, "onFCPublish", NetStreamPublishStart)

	id := ts.createStream(t, 4)
	ts.publish(t, id, "mystream")
	ts.handler.expect(t, "publish 1 live/mystream")

	ts.command(t, 0, "FCUnpublish", 6.0, nil, "mystream")
	ts.handler.expect(t, "unpublish 1")
	ts.expectStatus(t, "onFCUnpublish", NetStreamUnpublishSuccess)

	// Nothing is publishing any more; closeStream is a no-op, deleteStream still answers.
	ts.command(t, id, "closeStream", 0.0, nil)
	ts.command(t, 0, "deleteStream", 7.0, nil, float64(id))
	ts.expectStatus(t, "onStatus", NetStreamDeleteStreamSuccess)

	ts.command(t, 0, "getStreamLength", 8.0, nil, "mystream")
	ts.handler.expect(t, "command getStreamLength 2")
}

func TestSessionCloseStream(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, 0)
	id := ts.createStream(t, 2)
	ts.publish(t, id, "mystream")
	ts.handler.expect(t, "publish 1 live/mystream")

	ts.command(t, id, "closeStream", 0.0, nil)
	ts.handler.expect(t, "unpublish 1")
	msg := ts.expectStatus(t, "onStatus", NetStreamUnpublishSuccess)
	if msg.StreamID != id {
		t.Errorf("Unpublish.Success sent on stream %d, want %d", msg.StreamID, id)
	}
}

func TestSessionUncleanClose(t *testing.T) {
	b := NewBroadcaster(nil)
	ts := startSession(t, SessionConfig{Broadcaster: b})
	ts.connect(t, 0)
	id := ts.createStream(t, 2)
	ts.publish(t, id, "mystream")
	ts.handler.expect(t, "publish 1 live/mystream")

	events, cancel := b.Subscribe()
	defer cancel()

	ts.conn.Close()
	if err := ts.wait(t); err != nil {
		t.Errorf("Start() = %v", err)
	}
	ts.handler.expect(t, "unpublish 1")
	if ts.session.ClosedCleanly() {
		t.Error("ClosedCleanly() = true after a disconnect while publishing")
	}
	select {
	case ev := <-events:
		if ev.Type != StreamClosed {
			t.Errorf("event = %s, want close", ev.Type)
		}
	default:
		t.Error("no close event")
	}
	if len(b.Streams()) != 0 {
		t.Errorf("Streams() = %+v", b.Streams())
	}
}

func TestSessionPublishDenied(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Broadcaster, *recordingHandler)
		cause error
		event bool
	}{
		{"name taken", func(b *Broadcaster, _ *recordingHandler) {
			b.Publish(Publisher{SessionID: "other", StreamID: 1, App: "live", Name: "mystream"})
		}, ErrStreamAlreadyPublished, false},
		{"handler refuses", func(_ *Broadcaster, h *recordingHandler) {
			h.deny = errors.New("not allowed")
		}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroadcaster(nil)
			ts := startSession(t, SessionConfig{Broadcaster: b})
			tt.setup(b, ts.handler)
			ts.connect(t, 0)
			id := ts.createStream(t, 2)

			ts.command(t, id, "publish", 5.0, nil, "mystream", "live")
			msg := ts.expectStatus(t, "onStatus", NetStreamPublishBadName)
			if msg.StreamID != id {
				t.Errorf("BadName sent on stream %d, want %d", msg.StreamID, id)
			}
			if tt.event {
				ts.handler.expect(t, "publish 1 live/mystream")
			}

			err := ts.wait(t)
			if err == nil {
				t.Fatal("Start() = nil, want the denial")
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("Start() = %v, want %v", err, tt.cause)
			}
			for _, p := range b.Streams() {
				if p.SessionID == "test-session" {
					t.Errorf("denied publish is still registered: %+v", p)
				}
			}
		})
	}
}

func TestSessionProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		send    func(*testing.T, *testSession)
		want    error
		code    string
	}{
		{"publish before connect", false, func(t *testing.T, ts *testSession) {
			ts.command(t, 1, "publish", 5.0, nil, "mystream", "live")
		}, ErrPublishBeforeConnect, NetConnectionConnectRejected},
		{"media before connect", false, func(t *testing.T, ts *testSession) {
			ts.send(t, &Message{Type: AudioMessage, ChunkStreamID: AudioChunkStreamID, StreamID: 1, Payload: []byte{0xAF, 1}})
		}, ErrPublishBeforeConnect, NetConnectionConnectRejected},
		{"play", true, func(t *testing.T, ts *testSession) {
			id := ts.createStream(t, 2)
			ts.command(t, id, "play", 3.0, nil, "mystream")
		}, ErrPlayNotSupported, NetStreamPlayFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startSession(t, SessionConfig{})
			if tt.connect {
				ts.connect(t, 0)
			}
			tt.send(t, ts)
			ts.expectStatus(t, "onStatus", tt.code)
			if err := ts.wait(t); !errors.Is(err, tt.want) {
				t.Errorf("Start() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionInvalidChunkSize(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.sendControl(t, &ChunkSize{Size: 0})
	ts.expectStatus(t, "onStatus", NetConnectionConnectFailed)
	var sizeErr *InvalidChunkSizeError
	if err := ts.wait(t); !errors.As(err, &sizeErr) {
		t.Errorf("Start() = %v, want InvalidChunkSizeError", err)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	ts := startSession(t, SessionConfig{IdleTimeout: 200 * time.Millisecond})
	ts.expectStatus(t, "onStatus", NetConnectionConnectClosed)
	if err := ts.wait(t); !errors.Is(err, ErrTimeout) {
		t.Errorf("Start() = %v, want ErrTimeout", err)
	}
}

func TestSessionPingAndPeerBandwidth(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, 0)

	ping := func(stamp uint32) {
		t.Helper()
		ts.sendControl(t, &UserControl{Event: EventPingRequest, Timestamp: stamp})
		var resp UserControl
		if err := resp.UnmarshalRTMPMessage(ts.expectType(t, UserControlMessage).Payload); err != nil ||
			resp.Event != EventPingResponse || resp.Timestamp != stamp {
			t.Fatalf("ping response = %+v, %v", resp, err)
		}
	}
	expectWindow := func(size uint32) {
		t.Helper()
		var was WindowAckSize
		if err := was.UnmarshalRTMPMessage(ts.expectType(t, WindowAcknowledgementSize).Payload); err != nil || was.Size != size {
			t.Fatalf("window ack size = %d, %v; want %d", was.Size, err, size)
		}
	}

	ping(123)

	steps := []struct {
		size   uint32
		limit  LimitType
		window uint32 // 0 when no window ack size is expected
	}{
		{1000, LimitDynamic, 0}, // no limit in effect yet
		{2000, LimitHard, 2000},
		{3000, LimitSoft, 0}, // larger than the current limit
		{1000, LimitSoft, 1000},
		{1500, LimitDynamic, 0}, // previous limit was soft
		{4000, LimitHard, 4000},
		{4500, LimitDynamic, 4500},
	}
	for i, step := range steps {
		ts.sendControl(t, &PeerBandwidth{Size: step.size, LimitType: step.limit})
		if step.window != 0 {
			expectWindow(step.window)
		}
		// A ping answered right away proves nothing else was sent.
		ping(uint32(i))
	}
}

func TestSessionAcknowledgement(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, 0)

	ts.sendControl(t, &WindowAckSize{Size: 100})
	ts.send(t, &Message{Type: AudioMessage, ChunkStreamID: AudioChunkStreamID, StreamID: 1, Payload: testPayload(300)})
	written := ts.written

	var ack Ack
	if err := ack.UnmarshalRTMPMessage(ts.expectType(t, Acknowledgement).Payload); err != nil {
		t.Fatal(err)
	}
	if ack.SequenceNumber != uint32(written) {
		t.Errorf("sequence number = %d, want %d", ack.SequenceNumber, written)
	}
}

func TestSessionCancelRequestsReconnect(t *testing.T) {
	tests := []struct {
		name      string
		caps      CapsEx
		reconnect bool
	}{
		{"reconnect supported", CapsExReconnect, true},
		{"reconnect not supported", CapsExMultitrack, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startSession(t, SessionConfig{})
			ts.connect(t, tt.caps)
			if ts.session.CapsEx() != tt.caps {
				t.Errorf("CapsEx() = %s, want %s", ts.session.CapsEx(), tt.caps)
			}

			ts.cancel()
			if tt.reconnect {
				ts.expectStatus(t, "onStatus", NetConnectionConnectReconnectRequest)
			}
			if err := ts.wait(t); err != nil {
				t.Errorf("Start() = %v, want nil after cancel", err)
			}
		})
	}
}

func TestSessionRequestReconnect(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, CapsExReconnect)

	if err := ts.session.RequestReconnect("rtmp://other/live", "moving"); err != nil {
		t.Fatalf("RequestReconnect() = %v", err)
	}
	msg, values := ts.expectCommand(t, "onStatus")
	info, _ := amf0.AsObject(values[3])
	if code, _ := info.String("code"); code != NetConnectionConnectReconnectRequest {
		t.Errorf("code = %q", code)
	}
	if url, _ := info.String("tcUrl"); url != "rtmp://other/live" {
		t.Errorf("tcUrl = %q", url)
	}
	if msg.StreamID != 0 {
		t.Errorf("sent on stream %d", msg.StreamID)
	}

	other := startSession(t, SessionConfig{})
	other.connect(t, 0)
	if err := other.session.RequestReconnect("", ""); err != ErrReconnectNotAllowed {
		t.Errorf("RequestReconnect() = %v, want ErrReconnectNotAllowed", err)
	}
}

func TestStatusCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		code string
		ok   bool
	}{
		{errors.Wrap(ErrPlayNotSupported, "x"), NetStreamPlayFailed, true},
		{errors.Wrap(ErrPublishBeforeConnect, "x"), NetConnectionConnectRejected, true},
		{ErrTimeout, NetConnectionConnectClosed, true},
		{&InvalidChunkSizeError{Size: 0}, NetConnectionConnectFailed, true},
		{&ChunkReadError{Kind: InvalidChunkType}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, ok := statusCodeFor(tt.err)
			if code != tt.code || ok != tt.ok {
				t.Errorf("statusCodeFor() = %q, %v; want %q, %v", code, ok, tt.code, tt.ok)
			}
		})
	}
}

func TestSessionTooManyChunkStreams(t *testing.T) {
	ts := startSession(t, SessionConfig{})
	ts.connect(t, 0)

	// The session fails part way through and closes its end, so the write may be cut short.
	ts.conn.Write(fanoutChunkStreams(2000))

	err := ts.wait(t)
	if !IsChunkReadError(err, TooManyPreviousChunkHeaders) {
		t.Fatalf("Start() = %v, want TooManyPreviousChunkHeaders", err)
	}
	ts.handler.mu.Lock()
	defer ts.handler.mu.Unlock()
	if len(ts.handler.data) != 0 {
		t.Errorf("handler received %d data messages, want none", len(ts.handler.data))
	}
}
