package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/Together/internal/app"
	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/metrics"
	"github.com/dkeye/Together/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator routes decoded events between connections. It never parses
// relay payloads.
type Orchestrator struct {
	Registry    *app.Registry
	Connections *app.Connections
	Policy      app.Policy
	JoinPolicy  app.JoinPolicy
	Metrics     *metrics.Metrics

	// mu orders each membership change together with its notifications, so
	// members observe joins and leaves in registry order.
	mu sync.Mutex
}

// Dispatch handles one event from sender. Callers process a connection's
// events sequentially.
func (o *Orchestrator) Dispatch(sender domain.ConnID, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Join:
		o.OnJoin(sender, e.Room)
	case protocol.Leave:
		o.OnLeave(sender)
	case protocol.Relay:
		o.OnRelay(sender, e)
	case protocol.Ping:
		if f, ok := encoded(protocol.Pong()); ok {
			o.send(sender, f)
		}
	default:
		log.Warn().Str("module", "orch").Str("sid", string(sender)).Str("type", string(ev.Type())).Msg("unhandled event")
	}
}

// Greet tells a fresh connection its own id.
func (o *Orchestrator) Greet(id domain.ConnID) {
	if f, ok := encoded(protocol.Connected(id)); ok {
		o.send(id, f)
	}
}

// send enqueues f for to and applies the backpressure policy. It reports
// whether the frame was accepted.
func (o *Orchestrator) send(to domain.ConnID, f core.Frame) bool {
	conn, ok := o.Connections.Get(to)
	if !ok {
		o.dropped(metrics.ReasonUnknownTarget)
		log.Debug().Str("module", "orch").Str("sid", string(to)).Msg("send: no connection for")
		return false
	}
	err := conn.TrySend(f)
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrBackpressure):
		o.dropped(metrics.ReasonBackpressure)
		if o.Policy != nil && o.Policy.OnBackPressure(to) == app.KickMember {
			log.Warn().Str("module", "orch").Str("sid", string(to)).Msg("send buffer full, kicking member")
			if o.Metrics != nil {
				o.Metrics.Kicked.Inc()
			}
			conn.Close()
		} else {
			log.Warn().Str("module", "orch").Str("sid", string(to)).Msg("send buffer full, frame dropped")
		}
	default:
		o.dropped(metrics.ReasonClosed)
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(to)).Msg("send failed")
	}
	return false
}

func (o *Orchestrator) dropped(reason string) {
	if o.Metrics != nil {
		o.Metrics.RelayDropped.WithLabelValues(reason).Inc()
	}
}

func (o *Orchestrator) syncRoomGauge() {
	if o.Metrics != nil {
		o.Metrics.Rooms.Set(float64(o.Registry.Len()))
	}
}

func encoded(f core.Frame, err error) (core.Frame, bool) {
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return nil, false
	}
	return f, true
}
