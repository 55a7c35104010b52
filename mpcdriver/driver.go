// Package mpcdriver defines the uniform contract every MPC protocol
// implementation (CGGMP, FROST) exposes to the bridge: a generic
// round/proceed/handle/finalize state machine, parametric over the
// protocol's own message and output types.
package mpcdriver

import "errors"

// ErrInvalidRound is returned whenever a RoundMessage claims round 0; round
// numbers are 1-indexed and 0 is reserved as an invalid sentinel.
var ErrInvalidRound = errors.New("mpcdriver: round number must be non-zero")

// PartyNumber is a protocol-local 1-indexed party identifier, distinct from
// a network public key or signature verifying key.
type PartyNumber uint16

// RoundInfo describes a driver's current position in its own protocol.
type RoundInfo struct {
	RoundNumber uint16
	CanFinalize bool
	IsEcho      bool
}

// RoundMessage is the generic envelope a driver exchanges with its peers.
// Round is validated non-zero at construction; Body carries the
// protocol-specific payload.
type RoundMessage[T any] struct {
	Round    uint16
	Sender   PartyNumber
	Receiver PartyNumber
	Body     T
}

// NewRoundMessage constructs a RoundMessage, rejecting round 0.
func NewRoundMessage[T any](round uint16, sender, receiver PartyNumber, body T) (RoundMessage[T], error) {
	if round == 0 {
		return RoundMessage[T]{}, ErrInvalidRound
	}
	return RoundMessage[T]{Round: round, Sender: sender, Receiver: receiver, Body: body}, nil
}

// OutgoingRoundMessage is what Proceed returns: a message to send, along
// with whether it is part of a broadcast (same body to every other party)
// or a p2p message (body specific to one receiver). A broadcast is emitted
// once per recipient, so Receiver is set in both cases.
type OutgoingRoundMessage[T any] struct {
	Broadcast bool
	Receiver  PartyNumber
	Body      T
}

// Driver is the four-operation contract every round-based MPC protocol
// implements. M is the wire message body type; O is the protocol's final
// output type.
type Driver[M any, O any] interface {
	// RoundInfo reports the driver's current round and whether it is ready
	// to finalize.
	RoundInfo() RoundInfo

	// Proceed advances local state by exactly one round, returning the
	// messages to send. It must not be called while RoundInfo().CanFinalize
	// is true.
	Proceed() ([]OutgoingRoundMessage[M], error)

	// HandleIncoming records a peer's round message. A message whose Round
	// is ahead of the current round is cached, not dropped, and is
	// consumed automatically when the driver advances to that round.
	HandleIncoming(msg RoundMessage[M]) error

	// TryFinalizeRound returns the final output once all required inputs
	// for the current round are present; otherwise it returns (nil, nil)
	// after optionally transitioning to the next round's state (a driver
	// may do this eagerly, "synedrion-style", or defer it to a subsequent
	// Proceed call, "FROST-style" — both are valid implementations of this
	// interface).
	TryFinalizeRound() (*O, error)
}
