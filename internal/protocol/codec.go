package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
)

type inbound struct {
	Type      Type            `json:"type"`
	RoomCode  string          `json:"roomCode"`
	Target    string          `json:"target"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

// Decode turns one text frame into an Event. Errors wrap ErrMalformed or
// ErrUnknownType.
func Decode(data []byte) (Event, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch in.Type {
	case TypeJoinRoom:
		code, err := domain.ParseRoomCode(in.RoomCode)
		if err != nil {
			return nil, fmt.Errorf("%w: roomCode: %w", ErrMalformed, err)
		}
		return Join{Room: code}, nil
	case TypeLeaveRoom:
		return Leave{}, nil
	case TypePing:
		return Ping{}, nil
	case TypeOffer, TypeAnswer, TypeICECandidate:
		if in.Target == "" {
			return nil, fmt.Errorf("%w: %s without target", ErrMalformed, in.Type)
		}
		payload := in.payload()
		if isAbsent(payload) {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, in.Type)
		}
		return Relay{Kind: in.Type, Target: domain.ConnID(in.Target), Payload: payload}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}

func (in *inbound) payload() json.RawMessage {
	switch in.Type {
	case TypeOffer:
		return in.Offer
	case TypeAnswer:
		return in.Answer
	default:
		return in.Candidate
	}
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

type connectedMsg struct {
	Type         Type          `json:"type"`
	ConnectionID domain.ConnID `json:"connectionId"`
}

type roomUsersMsg struct {
	Type          Type            `json:"type"`
	RoomCode      domain.RoomCode `json:"roomCode"`
	ExistingUsers []domain.ConnID `json:"existingUsers"`
}

type relayMsg struct {
	Type      Type            `json:"type"`
	Sender    domain.ConnID   `json:"sender"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type leftRoomMsg struct {
	Type     Type            `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
}

type errorMsg struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
	Ref   Type   `json:"ref,omitempty"`
}

type bareMsg struct {
	Type Type `json:"type"`
}

func Connected(id domain.ConnID) (core.Frame, error) {
	return encode(connectedMsg{Type: TypeConnected, ConnectionID: id})
}

// RoomUsers lists the members that were present before the joiner arrived.
func RoomUsers(code domain.RoomCode, existing []domain.ConnID) (core.Frame, error) {
	if existing == nil {
		existing = []domain.ConnID{}
	}
	return encode(roomUsersMsg{Type: TypeRoomUsers, RoomCode: code, ExistingUsers: existing})
}

func UserJoined(id domain.ConnID) (core.Frame, error) {
	return encode(connectedMsg{Type: TypeUserJoined, ConnectionID: id})
}

func UserLeft(id domain.ConnID) (core.Frame, error) {
	return encode(connectedMsg{Type: TypeUserLeft, ConnectionID: id})
}

func LeftRoom(code domain.RoomCode) (core.Frame, error) {
	return encode(leftRoomMsg{Type: TypeLeftRoom, RoomCode: code})
}

// Forward re-addresses a relay payload to its target, stamped with the sender.
// The payload is re-serialized as compact JSON and never interpreted.
func Forward(kind Type, sender domain.ConnID, payload json.RawMessage) (core.Frame, error) {
	msg := relayMsg{Type: kind, Sender: sender}
	switch kind {
	case TypeOffer:
		msg.Offer = payload
	case TypeAnswer:
		msg.Answer = payload
	case TypeICECandidate:
		msg.Candidate = payload
	default:
		return nil, fmt.Errorf("%w: %q is not a relay kind", ErrUnknownType, kind)
	}
	return encode(msg)
}

func Error(reason string, ref Type) (core.Frame, error) {
	return encode(errorMsg{Type: TypeError, Error: reason, Ref: ref})
}

func Pong() (core.Frame, error) {
	return encode(bareMsg{Type: TypePong})
}

// encode leaves <, > and & unescaped so relayed SDP keeps its characters.
func encode(v any) (core.Frame, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return core.Frame(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
