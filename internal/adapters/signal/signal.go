package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Together/internal/app/orch"
	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Settings are the per-connection transport limits.
type Settings struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// SignalWSController owns the lifecycle of every signaling connection.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	Metrics *metrics.Metrics

	settings Settings
	upgrader websocket.Upgrader
	sessions sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, m *metrics.Metrics, s Settings) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		Metrics:  m,
		settings: s,
	}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(s.AllowedOrigins),
	}
	return ctl
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients do not send Origin.
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// WsSignalConn is the send side of one websocket. Frames are queued and
// written by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close is idempotent and safe to call from any goroutine.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

type session struct {
	id     domain.ConnID
	conn   *WsSignalConn
	cancel context.CancelFunc
	once   sync.Once
}

// HandleSignal upgrades the request and runs the connection until either
// side goes away or ctx is canceled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("remote", c.ClientIP()).Msg("ws upgrade")
		return
	}

	id := domain.NewConnID()
	conn := newWsSignalConn(ws, ctl.settings.SendBuffer)
	if err := ctl.Orch.Connections.Bind(id, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(id)).Msg("bind connection")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{id: id, conn: conn, cancel: cancel}
	ctl.sessions.Add(1)
	if ctl.Metrics != nil {
		ctl.Metrics.Connections.Inc()
	}
	log.Info().Str("module", "signal").Str("sid", string(id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	ctl.Orch.Greet(id)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go ctl.writePump(ctx, s)
	go ctl.readPump(s)
}

// teardown runs once per session no matter how many paths report the end
// of the connection.
func (ctl *SignalWSController) teardown(s *session, reason string) {
	s.once.Do(func() {
		ctl.Orch.Connections.Unbind(s.id)
		ctl.Orch.OnDisconnect(s.id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(s.id)
		}
		s.cancel()
		s.conn.Close()
		if ctl.Metrics != nil {
			ctl.Metrics.Connections.Dec()
		}
		log.Info().Str("module", "signal").Str("sid", string(s.id)).Str("reason", reason).Msg("connection closed")
		ctl.sessions.Done()
	})
}

// Wait blocks until every session has been torn down or ctx expires.
func (ctl *SignalWSController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ctl.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
