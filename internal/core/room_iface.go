package core

import (
	"github.com/dkeye/Together/internal/domain"
)

// Departure describes the room a connection just left.
type Departure struct {
	Room      domain.RoomCode
	Remaining []domain.ConnID
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"code"`
	MemberCount int             `json:"member_count"`
}

// RoomRegistry is the sole authority on membership. A connection is a member
// of at most one room at a time.
type RoomRegistry interface {
	Join(code domain.RoomCode, id domain.ConnID) ([]domain.ConnID, error)
	Leave(id domain.ConnID) (Departure, bool)
	MembersOf(code domain.RoomCode) []domain.ConnID
	RoomOf(id domain.ConnID) (domain.RoomCode, bool)
	List() []RoomInfo
	Len() int
}
