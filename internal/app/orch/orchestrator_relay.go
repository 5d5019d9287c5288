package orch

import (
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/protocol"
	"github.com/rs/zerolog/log"
)

// OnRelay forwards an offer, answer or ICE candidate to its target only.
// A target that is gone is not an error for the sender.
func (o *Orchestrator) OnRelay(sender domain.ConnID, ev protocol.Relay) {
	f, ok := encoded(protocol.Forward(ev.Kind, sender, ev.Payload))
	if !ok {
		return
	}
	if _, ok := o.Connections.Get(ev.Target); !ok {
		log.Warn().Str("module", "orch").Str("sid", string(sender)).Str("target", string(ev.Target)).Str("type", string(ev.Kind)).Msg("relay target not connected")
	}
	if o.send(ev.Target, f) {
		log.Debug().Str("module", "orch").Str("sid", string(sender)).Str("target", string(ev.Target)).Str("type", string(ev.Kind)).Msg("relayed")
	}
}
