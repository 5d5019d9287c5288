// Package protocol defines the JSON frames exchanged with browsers over the
// signaling socket and decodes inbound frames into a closed set of events.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Together/internal/domain"
)

// Type is the wire discriminator carried in every frame.
type Type string

// Inbound.
const (
	TypeJoinRoom     Type = "join-room"
	TypeLeaveRoom    Type = "leave-room"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypePing         Type = "ping"
)

// Outbound. Relay kinds reuse their inbound names.
const (
	TypeConnected  Type = "connected"
	TypeRoomUsers  Type = "room-users"
	TypeUserJoined Type = "user-joined"
	TypeUserLeft   Type = "user-left"
	TypeLeftRoom   Type = "left-room"
	TypeError      Type = "error"
	TypePong       Type = "pong"
)

// IsRelay reports whether t is unicast to an explicit target.
func (t Type) IsRelay() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// Event is a decoded inbound frame: one of Join, Leave, Relay or Ping.
type Event interface {
	Type() Type
}

type Join struct {
	Room domain.RoomCode
}

type Leave struct{}

// Relay is an offer, answer or ICE candidate addressed to Target.
// Payload is never inspected.
type Relay struct {
	Kind    Type
	Target  domain.ConnID
	Payload json.RawMessage
}

type Ping struct{}

func (Join) Type() Type    { return TypeJoinRoom }
func (Leave) Type() Type   { return TypeLeaveRoom }
func (r Relay) Type() Type { return r.Kind }
func (Ping) Type() Type    { return TypePing }
