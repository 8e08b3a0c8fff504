package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aswatji/serverchat/internal/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	eventTimeout = 10 * time.Second
)

// ServerConfig tunes the websocket transport.
type ServerConfig struct {
	SendBuffer      int
	MaxMessageBytes int64
	EventsPerSecond float64
	EventBurst      int
	// CheckOrigin overrides the upgrader's origin check. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

func (c *ServerConfig) withDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = 20
	}
	if c.EventBurst <= 0 {
		c.EventBurst = 40
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Server upgrades HTTP requests to websocket sessions and pumps frames
// between the socket and the engine.
type Server struct {
	engine     *Engine
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	cfg        ServerConfig
	logger     zerolog.Logger

	mu      sync.Mutex
	closing bool
	readers sync.WaitGroup
}

// NewServer creates the websocket endpoint.
func NewServer(engine *Engine, logger zerolog.Logger, cfg ServerConfig) *Server {
	cfg.withDefaults()
	return &Server{
		engine:     engine,
		dispatcher: NewDispatcher(engine),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP handles GET /ws.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !srv.track() {
		http.Error(w, `{"error":"server shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	defer srv.readers.Done()

	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s := NewSession(srv.cfg.SendBuffer)
	srv.engine.Connect(s)

	// Shutdown may have snapshotted the sessions before this one registered.
	srv.mu.Lock()
	closing := srv.closing
	srv.mu.Unlock()
	if closing {
		srv.engine.Disconnect(s, "server shutting down")
	}

	go srv.writePump(conn, s)
	srv.readPump(r.Context(), conn, s)
}

// Shutdown refuses new connections, closes every connected session and
// waits until their read pumps have returned, so no event is still being
// handled afterwards. Hijacked connections are not tracked by http.Server.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	srv.closing = true
	srv.mu.Unlock()

	for _, s := range srv.engine.Registry().Sessions() {
		srv.engine.Disconnect(s, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		srv.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a connection unless shutdown has begun.
func (srv *Server) track() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.closing {
		return false
	}
	srv.readers.Add(1)
	return true
}

func (srv *Server) readPump(ctx context.Context, conn *websocket.Conn, s *Session) {
	reason := "transport close"
	defer func() {
		srv.engine.Disconnect(s, reason)
		_ = conn.Close()
	}()

	conn.SetReadLimit(srv.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(srv.cfg.EventsPerSecond), srv.cfg.EventBurst)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			reason = closeReason(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow() {
			metrics.RateLimitHits.WithLabelValues("ws").Inc()
			srv.engine.Reject(s, "Rate limit exceeded", nil)
			continue
		}

		eventCtx, cancel := context.WithTimeout(ctx, eventTimeout)
		if err := srv.dispatcher.Dispatch(eventCtx, s, frame); err != nil {
			srv.logger.Debug().Err(err).Str("session", s.ID()).Msg("event rejected")
		}
		cancel()
	}
}

func (srv *Server) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				srv.engine.Disconnect(s, "transport error")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				srv.engine.Disconnect(s, "ping timeout")
				return
			}

		case <-s.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, s.CloseReason())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// closeReason maps a read error onto the disconnect reason reported to peers.
func closeReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "client namespace disconnect"
	}
	if websocket.IsUnexpectedCloseError(err) {
		return "transport error"
	}
	return "transport close"
}
