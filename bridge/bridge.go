// Package bridge connects transport events to a protocol driver: it
// decides, for every inbound round message, whether to feed it to the
// driver, finalize the current round, or proceed to the next one and
// dispatch the resulting messages.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/polysig-go/mpcdriver"
	"github.com/opd-ai/polysig-go/wire"
)

var (
	// ErrSessionIDMismatch is returned when an inbound message names a
	// session id other than the bridge's own.
	ErrSessionIDMismatch = errors.New("bridge: session id mismatch")
	// ErrSessionIDRequired is returned when a driver-bound message carries
	// no session id at all.
	ErrSessionIDRequired = errors.New("bridge: session id required")
)

// Sender is the subset of the client transport the bridge needs to
// dispatch outgoing round messages: resolve a party number to a peer key,
// then send JSON over that peer's encrypted channel.
type Sender interface {
	PeerKeyForParty(party mpcdriver.PartyNumber) (wire.PublicKey, error)
	SendJSON(peer wire.PublicKey, sessionID wire.SessionID, value any) error
}

// Bridge drives one protocol invocation: it owns the driver, the session
// it's bound to, and this party's own party number.
type Bridge[M any, O any] struct {
	transport   Sender
	driver      mpcdriver.Driver[M, O]
	sessionID   wire.SessionID
	partyNumber mpcdriver.PartyNumber
}

// New constructs a bridge bound to one session and driver.
func New[M any, O any](transport Sender, driver mpcdriver.Driver[M, O], sessionID wire.SessionID, partyNumber mpcdriver.PartyNumber) *Bridge[M, O] {
	return &Bridge[M, O]{
		transport:   transport,
		driver:      driver,
		sessionID:   sessionID,
		partyNumber: partyNumber,
	}
}

// Execute performs the initial Proceed() to seed round 1 and dispatches its
// messages. Call this once before pumping events.
func (b *Bridge[M, O]) Execute() error {
	msgs, err := b.driver.Proceed()
	if err != nil {
		return fmt.Errorf("bridge: initial proceed failed: %w", err)
	}
	return b.dispatch(msgs)
}

// HandleEvent processes one inbound driver-bound message: msgSessionID is
// the session id carried by the transport event (nil if the event carried
// none), raw is the JSON-encoded round message body.
//
// It returns a non-nil output once the driver has finalized; a nil output
// and nil error means the bridge consumed the message and the protocol is
// still in progress.
func (b *Bridge[M, O]) HandleEvent(msgSessionID *wire.SessionID, raw []byte) (*O, error) {
	if msgSessionID == nil {
		return nil, ErrSessionIDRequired
	}
	if *msgSessionID != b.sessionID {
		return nil, ErrSessionIDMismatch
	}

	var msg mpcdriver.RoundMessage[M]
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("bridge: failed to decode round message: %w", err)
	}

	info := b.driver.RoundInfo()
	if !info.CanFinalize {
		if err := b.driver.HandleIncoming(msg); err != nil {
			return nil, fmt.Errorf("bridge: failed to handle incoming message: %w", err)
		}
		info = b.driver.RoundInfo()
	}

	if !info.CanFinalize {
		return nil, nil
	}

	output, err := b.driver.TryFinalizeRound()
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to finalize round: %w", err)
	}
	if output != nil {
		return output, nil
	}

	outgoing, err := b.driver.Proceed()
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to proceed: %w", err)
	}
	if err := b.dispatch(outgoing); err != nil {
		return nil, err
	}
	return nil, nil
}

func (b *Bridge[M, O]) dispatch(msgs []mpcdriver.OutgoingRoundMessage[M]) error {
	info := b.driver.RoundInfo()

	// A broadcast message is still emitted once per recipient by the driver
	// (same body, different Receiver), so Receiver is always concrete here
	// regardless of Broadcast.
	for _, m := range msgs {
		peer, err := b.transport.PeerKeyForParty(m.Receiver)
		if err != nil {
			return fmt.Errorf("bridge: failed to resolve party %d: %w", m.Receiver, err)
		}

		roundMsg, err := mpcdriver.NewRoundMessage(info.RoundNumber, b.partyNumber, m.Receiver, m.Body)
		if err != nil {
			return fmt.Errorf("bridge: failed to build round message: %w", err)
		}

		if err := b.transport.SendJSON(peer, b.sessionID, roundMsg); err != nil {
			return fmt.Errorf("bridge: failed to send round message: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"round":    info.RoundNumber,
			"receiver": m.Receiver,
		}).Debug("dispatched round message")
	}
	return nil
}
