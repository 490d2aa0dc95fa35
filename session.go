package rtmp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/rand"
	"go.uber.org/zap"
)

type SessionState uint8

const (
	StateHandshaking SessionState = iota
	StateAwaitingConnect
	StateConnected
	StatePublishing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAwaitingConnect:
		return "awaiting connect"
	case StateConnected:
		return "connected"
	case StatePublishing:
		return "publishing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// shutdownWriteTimeout bounds the writes made while a session is being torn down.
const shutdownWriteTimeout = time.Second

// SessionConfig holds the per connection settings. Zero fields take the package defaults.
type SessionConfig struct {
	// ID identifies the session in logs and in the Broadcaster. A UUID is generated when empty.
	ID            string
	ChunkSize     uint32
	WindowAckSize uint32
	PeerBandwidth uint32
	IdleTimeout   time.Duration
	// Broadcaster, when set, is told about every publish of the session.
	Broadcaster *Broadcaster
}

func (c *SessionConfig) fixup() {
	if c.ID == "" {
		c.ID = rand.SessionID()
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = config.DefaultChunkSize
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = config.DefaultWindowAckSize
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = config.DefaultPeerBandwidth
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = config.DefaultIdleTimeout
	}
}

// Session is the server side of one RTMP connection. It accepts a single client that
// connects and publishes; play requests end the session.
type Session struct {
	logger      *zap.Logger
	sessionID   string
	conn        net.Conn
	handler     Handler
	broadcaster *Broadcaster
	cfg         SessionConfig

	reader     *Reader
	writer     *Writer
	handshaker *ServerHandshaker
	stream     *MessageStream
	// Interprets messages, calling the appropriate callback on the session. Also in charge of sending messages.
	messageManager *MessageManager

	// mu guards the fields read by other goroutines.
	mu                 sync.Mutex
	state              SessionState
	app                string
	tcURL              string
	capsEx             CapsEx
	reconnectRequested bool

	lastStreamID uint32
	// publishing maps stream ids to the name they publish.
	publishing    map[uint32]string
	peerBandwidth uint32
	peerLimit     LimitType
	uncleanClose  bool
}

// NewSession wraps conn. The session owns conn from then on and closes it when Start returns.
func NewSession(logger *zap.Logger, conn net.Conn, handler Handler, cfg SessionConfig) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.fixup()
	logger = logger.With(zap.String("session", cfg.ID))

	// NewReader and NewWriter only fail on nil arguments.
	reader, _ := NewReader(bufio.NewReaderSize(conn, config.BuffioSize))
	reader.SetIdleTimeout(conn, cfg.IdleTimeout)
	writer, _ := NewWriter(bufio.NewWriterSize(conn, config.BuffioSize))

	session := &Session{
		logger:      logger,
		sessionID:   cfg.ID,
		conn:        conn,
		handler:     handler,
		broadcaster: cfg.Broadcaster,
		cfg:         cfg,
		reader:      reader,
		writer:      writer,
		handshaker:  NewServerHandshaker(),
		state:       StateHandshaking,
		publishing:  make(map[uint32]string),
		// No limit has been set; a Dynamic request is ignored until a Hard one arrives.
		peerLimit: LimitDynamic,
	}
	session.stream = NewMessageStream(logger.Sugar(), reader, writer, session.handshaker)
	session.messageManager = NewMessageManager(session.stream, session, logger)
	return session
}

func (session *Session) GetID() string {
	return session.sessionID
}

func (session *Session) State() SessionState {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.state
}

// App returns the application name sent in connect.
func (session *Session) App() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.app
}

// CapsEx returns the enhanced RTMP capabilities the client advertised in connect.
func (session *Session) CapsEx() CapsEx {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.capsEx
}

// ClosedCleanly reports whether every publish was ended with deleteStream, closeStream or
// FCUnpublish before the connection went away. Only meaningful after Start returns.
func (session *Session) ClosedCleanly() bool {
	return !session.uncleanClose
}

// BytesSent returns the number of bytes written to the client so far.
func (session *Session) BytesSent() uint64 {
	return session.writer.WrittenBytes()
}

func (session *Session) setState(state SessionState) {
	session.mu.Lock()
	session.state = state
	session.mu.Unlock()
}

// Start performs the handshake and processes messages until the client leaves, an error
// occurs or ctx is cancelled. A client closing the connection is not an error.
// When ctx is cancelled a client that supports it is asked to reconnect before the
// connection is closed.
func (session *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.conn.Close()
	stopped := make(chan struct{})
	defer close(stopped)
	go session.watchContext(ctx, stopped)
	defer session.teardown(ctx)

	if err := session.messageManager.Initialize(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	session.logger.Debug("handshake completed", zap.Stringer("scheme", session.handshaker.Scheme()))
	session.setState(StateAwaitingConnect)

	for {
		if err := session.messageManager.nextMessage(ctx); err != nil {
			return session.closeError(ctx, err)
		}
	}
}

func (session *Session) watchContext(ctx context.Context, stopped <-chan struct{}) {
	select {
	case <-stopped:
		return
	case <-ctx.Done():
	}
	select {
	case <-stopped:
		return
	default:
	}

	_ = session.conn.SetWriteDeadline(time.Now().Add(shutdownWriteTimeout))
	session.mu.Lock()
	reconnect := session.capsEx.Has(CapsExReconnect) && !session.reconnectRequested
	session.mu.Unlock()
	if reconnect {
		if err := session.RequestReconnect("", "The server is shutting down."); err != nil {
			session.logger.Debug("sending reconnect request", zap.Error(err))
		}
	}
	session.reader.Interrupt()
}

// closeError decides what Start returns for err. Errors the client can make sense of are
// reported to it with an onStatus error first.
func (session *Session) closeError(ctx context.Context, err error) error {
	if ctx.Err() != nil || isClientClosed(err) {
		return nil
	}
	if code, ok := statusCodeFor(err); ok {
		_ = session.conn.SetWriteDeadline(time.Now().Add(shutdownWriteTimeout))
		status := &OnStatus{Level: LevelError, Code: code, Description: err.Error()}
		if sendErr := session.messageManager.sendStatusMessage(0, 0, status); sendErr != nil {
			session.logger.Debug("sending error status", zap.Error(sendErr))
		}
	}
	return err
}

func statusCodeFor(err error) (string, bool) {
	var sizeErr *InvalidChunkSizeError
	switch {
	case errors.Is(err, ErrPlayNotSupported):
		return NetStreamPlayFailed, true
	case errors.Is(err, ErrPublishBeforeConnect):
		return NetConnectionConnectRejected, true
	case errors.Is(err, ErrTimeout):
		return NetConnectionConnectClosed, true
	case errors.As(err, &sizeErr):
		return NetConnectionConnectFailed, true
	}
	return "", false
}

// teardown ends the publishes the client left open and reports the session as closed.
func (session *Session) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	ids := make([]uint32, 0, len(session.publishing))
	for id := range session.publishing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		session.uncleanClose = true
		session.logger.Warn("publisher disconnected without unpublishing",
			zap.Uint32("stream", id), zap.String("name", session.publishing[id]))
		if err := session.handler.OnUnpublish(ctx, id); err != nil {
			session.logger.Warn("unpublish handler failed", zap.Uint32("stream", id), zap.Error(err))
		}
		delete(session.publishing, id)
	}
	if session.broadcaster != nil {
		session.broadcaster.Close(session.sessionID)
	}
	session.setState(StateClosed)
	session.logger.Info("session closed",
		zap.Uint32("bytesReceived", session.stream.BytesReceived()),
		zap.Uint64("bytesSent", session.BytesSent()))
}

// RequestReconnect asks the client to reconnect, to tcURL when it is not empty. It fails
// with ErrReconnectNotAllowed unless the client advertised CapsExReconnect. It may be called
// from any goroutine.
func (session *Session) RequestReconnect(tcURL, description string) error {
	session.mu.Lock()
	if !session.capsEx.Has(CapsExReconnect) {
		session.mu.Unlock()
		return ErrReconnectNotAllowed
	}
	session.reconnectRequested = true
	session.mu.Unlock()

	status := &OnStatus{
		Level:       LevelStatus,
		Code:        NetConnectionConnectReconnectRequest,
		Description: description,
	}
	if tcURL != "" {
		status.Extras = amf0.Object{{Key: "tcUrl", Value: tcURL}}
	}
	session.logger.Info("requesting reconnect", zap.String("tcUrl", tcURL))
	return session.messageManager.sendStatusMessage(0, 0, status)
}

func (session *Session) onSetChunkSize(size uint32) error {
	session.logger.Debug("peer chunk size", zap.Uint32("size", size))
	return session.stream.SetReadChunkSize(size)
}

func (session *Session) onAbortMessage(chunkStreamID uint32) {
	session.logger.Debug("abort message", zap.Uint32("csid", chunkStreamID))
	session.stream.AbortMessage(chunkStreamID)
}

func (session *Session) onAck(sequenceNumber uint32) {
	session.logger.Debug("acknowledgement", zap.Uint32("sequenceNumber", sequenceNumber))
}

func (session *Session) onSetWindowAckSize(windowAckSize uint32) {
	session.logger.Debug("window acknowledgement size", zap.Uint32("size", windowAckSize))
	session.stream.SetWindowAckSize(windowAckSize)
}

// onSetPeerBandwidth applies the limit rules of Set Peer Bandwidth and answers with our
// window size whenever the effective limit changes.
func (session *Session) onSetPeerBandwidth(size uint32, limitType LimitType) error {
	previous := session.peerBandwidth
	switch limitType {
	case LimitHard:
		session.peerBandwidth = size
		session.peerLimit = LimitHard
	case LimitSoft:
		if session.peerBandwidth == 0 || size < session.peerBandwidth {
			session.peerBandwidth = size
		}
		session.peerLimit = LimitSoft
	case LimitDynamic:
		if session.peerLimit == LimitHard {
			session.peerBandwidth = size
		}
	}
	session.logger.Debug("peer bandwidth",
		zap.Uint32("size", size), zap.Stringer("limit", limitType), zap.Uint32("effective", session.peerBandwidth))
	if session.peerBandwidth == previous {
		return nil
	}
	return session.messageManager.sendWindowAckSize(session.peerBandwidth)
}

func (session *Session) onUserControl(event *UserControl) error {
	switch event.Event {
	case EventPingRequest:
		return session.messageManager.sendPingResponse(event.Timestamp)
	default:
		session.logger.Debug("user control event ignored", zap.Stringer("event", event.Event))
		return nil
	}
}

func (session *Session) onCommand(ctx context.Context, msg *Message, cmd *Command) error {
	if session.State() == StateAwaitingConnect {
		connect, ok := cmd.Type.(*Connect)
		if !ok {
			return errors.Wrapf(ErrPublishBeforeConnect, "command %q", cmd.Name())
		}
		return session.onConnect(cmd.TransactionID, connect)
	}

	txn := cmd.TransactionID
	switch c := cmd.Type.(type) {
	case *CreateStream:
		return session.onCreateStream(txn)
	case *Publish:
		return session.onPublish(ctx, msg.StreamID, txn, c)
	case *Play, *Play2:
		return ErrPlayNotSupported
	case *DeleteStream:
		return session.onDeleteStream(ctx, txn, uint32(c.StreamID))
	case *CloseStream:
		return session.onCloseStream(ctx, msg.StreamID)
	case *ReleaseStream:
		return session.messageManager.sendUndefinedResult(txn)
	case *FCPublish:
		return session.onFCPublish(txn, c.Name)
	case *FCUnpublish:
		return session.onFCUnpublish(ctx, c.Name)
	case *Unknown:
		session.onUnknownCommand(ctx, c.Name, c.Values)
		return nil
	default:
		session.logger.Debug("command ignored", zap.String("command", cmd.Name()))
		return nil
	}
}

func (session *Session) onCommandError(ctx context.Context, msg *Message, err *CommandError) error {
	if session.State() == StateAwaitingConnect || err.Command == "" || isKnownCommand(err.Command) {
		return err
	}
	session.logger.Warn("dropping undecodable command", zap.String("command", err.Command), zap.Error(err.Err))
	return nil
}

func (session *Session) onConnect(transactionID float64, connect *Connect) error {
	session.mu.Lock()
	session.app = connect.App
	session.tcURL = connect.TcURL
	session.capsEx = connect.CapsEx
	session.state = StateConnected
	session.mu.Unlock()

	session.logger.Info("client connected",
		zap.String("app", connect.App),
		zap.String("tcUrl", connect.TcURL),
		zap.String("flashVer", connect.FlashVer),
		zap.Stringer("capsEx", connect.CapsEx))

	// As per the RTMP specification, after the connect command the server sends Window Acknowledgement
	// Size, Set Peer Bandwidth and its chunk size, then the result.
	err := session.messageManager.sendConnectSequence(session.cfg.WindowAckSize, session.cfg.PeerBandwidth, session.cfg.ChunkSize)
	if err != nil {
		return err
	}
	return session.messageManager.sendConnectSuccess(transactionID)
}

func (session *Session) onCreateStream(transactionID float64) error {
	session.lastStreamID++
	session.logger.Debug("stream created", zap.Uint32("stream", session.lastStreamID))
	return session.messageManager.sendCreateStreamResponse(transactionID, session.lastStreamID)
}

func (session *Session) onPublish(ctx context.Context, streamID uint32, transactionID float64, publish *Publish) error {
	if _, busy := session.publishing[streamID]; busy {
		return session.denyPublish(streamID, transactionID, publish.Name, errors.Errorf("stream %d is already publishing", streamID))
	}

	app := session.App()
	if session.broadcaster != nil {
		err := session.broadcaster.Publish(Publisher{
			SessionID:  session.sessionID,
			StreamID:   streamID,
			App:        app,
			Name:       publish.Name,
			RemoteAddr: session.conn.RemoteAddr().String(),
			StartedAt:  time.Now(),
		})
		if err != nil {
			return session.denyPublish(streamID, transactionID, publish.Name, err)
		}
	}
	if err := session.handler.OnPublish(ctx, streamID, app, publish.Name); err != nil {
		if session.broadcaster != nil {
			_ = session.broadcaster.Unpublish(session.sessionID, streamID)
		}
		return session.denyPublish(streamID, transactionID, publish.Name, err)
	}

	session.publishing[streamID] = publish.Name
	session.setState(StatePublishing)
	session.logger.Info("publish started",
		zap.Uint32("stream", streamID),
		zap.String("app", app),
		zap.String("name", publish.Name),
		zap.String("type", string(publish.Type)),
		zap.String("rawType", publish.RawType))
	return session.messageManager.sendPublishStart(streamID, transactionID, publish.Name)
}

// denyPublish tells the client its publish was refused. The returned error ends the session.
func (session *Session) denyPublish(streamID uint32, transactionID float64, name string, cause error) error {
	session.logger.Info("publish denied", zap.Uint32("stream", streamID), zap.String("name", name), zap.Error(cause))
	status := &OnStatus{Level: LevelError, Code: NetStreamPublishBadName, Description: cause.Error()}
	if err := session.messageManager.sendStatusMessage(streamID, transactionID, status); err != nil {
		session.logger.Debug("sending publish denial", zap.Error(err))
	}
	return errors.Wrapf(cause, "rtmp: publish %q denied", name)
}

func (session *Session) unpublish(ctx context.Context, streamID uint32) error {
	name, ok := session.publishing[streamID]
	if !ok {
		return nil
	}
	delete(session.publishing, streamID)
	if len(session.publishing) == 0 {
		session.setState(StateConnected)
	}
	if session.broadcaster != nil {
		_ = session.broadcaster.Unpublish(session.sessionID, streamID)
	}
	session.logger.Info("publish stopped", zap.Uint32("stream", streamID), zap.String("name", name))
	return session.handler.OnUnpublish(ctx, streamID)
}

func (session *Session) onDeleteStream(ctx context.Context, transactionID float64, streamID uint32) error {
	if err := session.unpublish(ctx, streamID); err != nil {
		return err
	}
	return session.messageManager.sendStatusMessage(0, transactionID, &OnStatus{
		Level: LevelStatus,
		Code:  NetStreamDeleteStreamSuccess,
	})
}

func (session *Session) onCloseStream(ctx context.Context, streamID uint32) error {
	name, ok := session.publishing[streamID]
	if !ok {
		return nil
	}
	if err := session.unpublish(ctx, streamID); err != nil {
		return err
	}
	return session.messageManager.sendStatusMessage(streamID, 0, &OnStatus{
		Level:       LevelStatus,
		Code:        NetStreamUnpublishSuccess,
		Description: name + " is now unpublished.",
	})
}

func (session *Session) onFCPublish(transactionID float64, name string) error {
	if err := session.messageManager.sendUndefinedResult(transactionID); err != nil {
		return err
	}
	return session.messageManager.sendStatusMessage(0, 0, &OnStatus{
		Name:        onFCPublish,
		Level:       LevelStatus,
		Code:        NetStreamPublishStart,
		Description: name,
	})
}

// onFCUnpublish ends the publish of name, if this session has one.
func (session *Session) onFCUnpublish(ctx context.Context, name string) error {
	for id, published := range session.publishing {
		if published == name {
			if err := session.unpublish(ctx, id); err != nil {
				return err
			}
			break
		}
	}
	return session.messageManager.sendStatusMessage(0, 0, &OnStatus{
		Name:        onFCUnpublish,
		Level:       LevelStatus,
		Code:        NetStreamUnpublishSuccess,
		Description: name,
	})
}

func (session *Session) onUnknownCommand(ctx context.Context, name string, values []interface{}) {
	if h, ok := session.handler.(UnknownCommandHandler); ok {
		h.OnUnknownCommand(ctx, name, values)
		return
	}
	session.logger.Warn("unknown command", zap.String("command", name), zap.Int("values", len(values)))
}

func (session *Session) onData(ctx context.Context, msg *Message, kind DataKind, payload []byte) error {
	if session.State() == StateAwaitingConnect {
		return errors.Wrapf(ErrPublishBeforeConnect, "%s message", msg.Type)
	}
	if _, ok := session.publishing[msg.StreamID]; !ok {
		session.logger.Debug("dropping data for a stream that is not publishing",
			zap.Uint32("stream", msg.StreamID), zap.Stringer("kind", kind))
		return nil
	}
	if session.broadcaster != nil {
		_ = session.broadcaster.Record(session.sessionID, msg.StreamID, kind, len(payload))
	}
	return session.handler.OnData(ctx, msg.StreamID, SessionData{
		Kind:      kind,
		Timestamp: msg.Timestamp,
		Payload:   payload,
	})
}

func (session *Session) onUnknownMessage(ctx context.Context, msg *Message) error {
	if session.State() == StateAwaitingConnect {
		return errors.Wrapf(ErrPublishBeforeConnect, "%s message", msg.Type)
	}
	if h, ok := session.handler.(UnknownMessageHandler); ok {
		h.OnUnknownMessage(ctx, msg)
		return nil
	}
	session.logger.Warn("unknown message", zap.Stringer("type", msg.Type), zap.Int("size", len(msg.Payload)))
	return nil
}

var _ mediaServer = (*Session)(nil)
