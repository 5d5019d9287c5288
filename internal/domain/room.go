package domain

import (
	"errors"
	"unicode"
)

const MaxRoomCodeLen = 64

var (
	ErrRoomCodeEmpty   = errors.New("room code empty")
	ErrRoomCodeTooLong = errors.New("room code too long")
	ErrRoomCodeInvalid = errors.New("room code contains control characters")
)

// RoomCode is the caller-supplied room name. Rooms are never pre-registered.
type RoomCode string

// ParseRoomCode validates raw input coming from a client.
func ParseRoomCode(raw string) (RoomCode, error) {
	if len(raw) == 0 {
		return "", ErrRoomCodeEmpty
	}
	if len(raw) > MaxRoomCodeLen {
		return "", ErrRoomCodeTooLong
	}
	for _, r := range raw {
		if unicode.IsControl(r) {
			return "", ErrRoomCodeInvalid
		}
	}
	return RoomCode(raw), nil
}
