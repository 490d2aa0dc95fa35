// Package api serves the admin HTTP endpoints of the ingest server: health, the list of
// active publishes and a websocket feed of publish events.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	rtmp "github.com/torresjeff/rtmp-ingest"
	"go.uber.org/zap"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server is the admin API.
type Server struct {
	router      *gin.Engine
	broadcaster *rtmp.Broadcaster
	logger      *zap.Logger
	upgrader    websocket.Upgrader

	// done is closed on shutdown so event feeds hijacked from the http.Server stop too.
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer builds the router. broadcaster must not be nil.
func NewServer(broadcaster *rtmp.Broadcaster, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		broadcaster: broadcaster,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	s.router.Use(s.accessLog(), gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/api/streams", s.streamsHandler)
	s.router.GET("/ws/events", s.eventsHandler)
}

// Router returns the gin engine, mostly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[api] listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "[api] serving")
	case <-ctx.Done():
	}

	s.shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "[api] shutting down")
	}
	return nil
}

func (s *Server) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type streamsResponse struct {
	Streams []rtmp.Publisher `json:"streams"`
}

func (s *Server) streamsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, streamsResponse{Streams: s.broadcaster.Streams()})
}

// eventsHandler streams every publish event as a JSON text message until the client goes away.
func (s *Server) eventsHandler(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("[api] websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.broadcaster.Subscribe()
	defer cancel()

	// The client never sends anything we use; reading is how a close is noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("[api] event feed write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[api] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
