package rtmp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/rand"
	"go.uber.org/zap"
)

// HandlerFactory returns the Handler for a new session.
type HandlerFactory func(sessionID string, remoteAddr net.Addr) Handler

// Server represents the RTMP server, where a client/app can stream media to. The server listens for incoming connections.
type Server struct {
	Addr        string
	Logger      *zap.Logger
	NewHandler  HandlerFactory
	Broadcaster *Broadcaster
	// Config tunes every session. Zero fields take the defaults from the config package.
	Config config.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	closed   bool
	sessions sync.WaitGroup
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled or Close is called.
// If no Addr (host:port) has been assigned to the server, ":1935" is used.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = s.Config.Addr
	}
	if addr == "" {
		addr = ":" + config.DefaultPort
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "[server] listening on %s", addr)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener, running one Session per connection, until ctx is
// cancelled or Close is called. It always returns a non-nil error; after shutdown it is
// ErrServerClosed. Serve waits for the sessions to finish before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := s.logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var slots chan struct{}
	if s.Config.MaxConnections > 0 {
		slots = make(chan struct{}, s.Config.MaxConnections)
	}

	logger.Info("[server] listening", zap.Stringer("addr", listener.Addr()))

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				s.sessions.Wait()
				return ErrServerClosed
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				backoff = nextBackoff(backoff)
				logger.Error("[server] error accepting incoming connection", zap.Error(err), zap.Duration("retry", backoff))
				time.Sleep(backoff)
				continue
			}
			s.sessions.Wait()
			return errors.Wrap(err, "[server] accepting")
		}
		backoff = 0

		if slots != nil {
			select {
			case slots <- struct{}{}:
			default:
				logger.Warn("[server] connection limit reached, rejecting",
					zap.String("remote", conn.RemoteAddr().String()), zap.Int("max", s.Config.MaxConnections))
				conn.Close()
				continue
			}
		}

		s.sessions.Add(1)
		go func(conn net.Conn) {
			defer s.sessions.Done()
			if slots != nil {
				defer func() { <-slots }()
			}
			s.serveConn(ctx, conn)
		}(conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	logger := s.logger()
	id := rand.SessionID()

	var handler Handler = HandlerFunc(func(context.Context, uint32, SessionData) error { return nil })
	if s.NewHandler != nil {
		handler = s.NewHandler(id, conn.RemoteAddr())
	}

	sess := NewSession(logger, conn, handler, SessionConfig{
		ID:            id,
		ChunkSize:     s.Config.ChunkSize,
		WindowAckSize: s.Config.WindowAckSize,
		PeerBandwidth: s.Config.PeerBandwidth,
		IdleTimeout:   s.Config.IdleTimeout.Duration,
		Broadcaster:   s.Broadcaster,
	})

	logger.Info("[server] starting session", zap.String("session", id), zap.String("remote", conn.RemoteAddr().String()))
	if err := sess.Start(ctx); err != nil {
		logger.Error("[server] session ended with an error", zap.String("session", id), zap.Error(err))
		return
	}
	logger.Info("[server] session ended", zap.String("session", id), zap.Bool("clean", sess.ClosedCleanly()))
}

// Close stops accepting connections and cancels every session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
