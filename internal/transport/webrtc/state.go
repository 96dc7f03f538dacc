package webrtc

import "errors"

var (
	ErrNegotiation        = errors.New("negotiation error")
	ErrNegotiationTimeout = errors.New("negotiation timeout")
)

type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

type State int

const (
	StateIdle State = iota
	StateAwaitingPeer
	StateOfferSent
	StateAwaitingAnswer
	StateOfferReceived
	StateAnswerSent
	StateAwaitingOpen
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateOfferSent:
		return "offer-sent"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateAwaitingOpen:
		return "awaiting-open"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// awaitingOpen reports whether the open timeout is running in this state.
func (s State) awaitingOpen() bool {
	switch s {
	case StateOfferSent, StateAwaitingAnswer, StateAnswerSent, StateAwaitingOpen:
		return true
	default:
		return false
	}
}
