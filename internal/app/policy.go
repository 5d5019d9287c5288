package app

import (
	"fmt"

	"github.com/dkeye/Together/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a recipient whose send buffer is full.
type Policy interface {
	OnBackPressure(id domain.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnID) BackpressureAction {
	return KickMember
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ConnID) BackpressureAction {
	return DropFrame
}

func ParseBackpressurePolicy(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}

// JoinPolicy governs a join from a connection that is already in a room.
type JoinPolicy string

const (
	// JoinMove leaves the current room first.
	JoinMove JoinPolicy = "move"
	// JoinReject refuses the join and keeps the current membership.
	JoinReject JoinPolicy = "reject"
)

func ParseJoinPolicy(name string) (JoinPolicy, error) {
	switch JoinPolicy(name) {
	case "", JoinMove:
		return JoinMove, nil
	case JoinReject:
		return JoinReject, nil
	}
	return "", fmt.Errorf("unknown join policy %q", name)
}
