package orch

import (
	"slices"

	"github.com/dkeye/Together/internal/app"
	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/protocol"
	"github.com/rs/zerolog/log"
)

// OnJoin adds sender to code, replies with the members already there and
// announces sender to each of them.
func (o *Orchestrator) OnJoin(sender domain.ConnID, code domain.RoomCode) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Teardown unbinds before OnDisconnect takes mu, so an unbound sender
	// is already gone and a late join must not resurrect it.
	if _, ok := o.Connections.Get(sender); !ok {
		log.Debug().Str("module", "orch").Str("sid", string(sender)).Str("room", string(code)).Msg("join from closed connection ignored")
		return
	}

	if cur, ok := o.Registry.RoomOf(sender); ok {
		if cur == code {
			others := slices.DeleteFunc(o.Registry.MembersOf(code), func(id domain.ConnID) bool { return id == sender })
			if f, ok := encoded(protocol.RoomUsers(code, others)); ok {
				o.send(sender, f)
			}
			return
		}
		if o.JoinPolicy == app.JoinReject {
			log.Info().Str("module", "orch").Str("sid", string(sender)).Str("room", string(cur)).Str("wanted", string(code)).Msg("join rejected, already in room")
			if f, ok := encoded(protocol.Error("already in room", protocol.TypeJoinRoom)); ok {
				o.send(sender, f)
			}
			return
		}
		o.leaveLocked(sender)
		log.Info().Str("module", "orch").Str("sid", string(sender)).Str("from_room", string(cur)).Str("room", string(code)).Msg("moved between rooms")
	}

	existing, err := o.Registry.Join(code, sender)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sender)).Str("room", string(code)).Msg("join")
		return
	}
	o.syncRoomGauge()

	if f, ok := encoded(protocol.RoomUsers(code, existing)); ok {
		o.send(sender, f)
	}
	if f, ok := encoded(protocol.UserJoined(sender)); ok {
		for _, member := range existing {
			o.send(member, f)
		}
	}
}

// OnLeave is an explicit leave; the connection stays open.
func (o *Orchestrator) OnLeave(sender domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	dep, ok := o.leaveLocked(sender)
	if !ok {
		return
	}
	if f, ok := encoded(protocol.LeftRoom(dep.Room)); ok {
		o.send(sender, f)
	}
}

// OnDisconnect removes sender from its room, if any, and tells the rest.
// The supervisor calls it exactly once per connection.
func (o *Orchestrator) OnDisconnect(sender domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaveLocked(sender)
}

func (o *Orchestrator) leaveLocked(sender domain.ConnID) (core.Departure, bool) {
	dep, ok := o.Registry.Leave(sender)
	if !ok {
		return dep, false
	}
	o.syncRoomGauge()
	if f, ok := encoded(protocol.UserLeft(sender)); ok {
		for _, member := range dep.Remaining {
			o.send(member, f)
		}
	}
	return dep, true
}
