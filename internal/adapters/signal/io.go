package signal

import (
	"context"
	"time"

	"github.com/dkeye/Together/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, s *session) {
	ticker := time.NewTicker(ctl.settings.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ctl.teardown(s, "context done")
			return
		case data, ok := <-s.conn.send:
			if !ok {
				ctl.teardown(s, "send channel closed")
				return
			}
			if err := s.conn.conn.SetWriteDeadline(time.Now().Add(ctl.settings.WriteWait)); err != nil {
				ctl.teardown(s, "set write deadline")
				return
			}
			if err := s.conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg("writePump write error")
				ctl.teardown(s, "write error")
				return
			}
		case <-ticker.C:
			if err := s.conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.settings.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg("writePump ping error")
				ctl.teardown(s, "ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(s *session) {
	ws := s.conn.conn
	ws.SetReadLimit(ctl.settings.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.settings.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.settings.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg("readPump read error")
			}
			ctl.teardown(s, "read error")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(ctl.settings.PongWait))
		if mt != websocket.TextMessage {
			ctl.malformed(s, "binary frame", nil)
			continue
		}
		ctl.handleFrame(s, data)
	}
}

// handleFrame decodes and dispatches one frame. Bad frames are dropped and
// the connection stays open.
func (ctl *SignalWSController) handleFrame(s *session, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		ctl.malformed(s, "undecodable frame", err)
		return
	}
	if ctl.Metrics != nil {
		ctl.Metrics.Events.WithLabelValues(string(ev.Type())).Inc()
	}

	if _, ok := ev.(protocol.Join); ok && ctl.Limiter != nil && !ctl.Limiter.Allow(s.id) {
		log.Warn().Str("module", "signal").Str("sid", string(s.id)).Msg("join rate limited")
		if f, err := protocol.Error("rate limited", protocol.TypeJoinRoom); err == nil {
			_ = s.conn.TrySend(f)
		}
		return
	}
	ctl.Orch.Dispatch(s.id, ev)
}

func (ctl *SignalWSController) malformed(s *session, what string, err error) {
	if ctl.Metrics != nil {
		ctl.Metrics.Malformed.Inc()
	}
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg(what)
}
