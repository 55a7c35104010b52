package client

import "github.com/opd-ai/polysig-go/wire"

// EventKind discriminates the events the transport's event loop emits.
type EventKind int

const (
	// EventServerConnected fires once the server-Noise transport is
	// established.
	EventServerConnected EventKind = iota
	// EventSessionCreated fires in response to NewSession.
	EventSessionCreated
	// EventSessionReady fires once every session member has sent
	// SessionReadyNotify.
	EventSessionReady
	// EventSessionActive fires once every pairwise peer channel is open.
	EventSessionActive
	// EventPeerConnected fires when a local peer handshake finishes.
	EventPeerConnected
	// EventJSONMessage fires on a decrypted JSON payload from a peer.
	EventJSONMessage
	// EventBinaryMessage fires on a decrypted blob payload from a peer.
	EventBinaryMessage
	// EventSessionFinished fires after a session close.
	EventSessionFinished
	// EventClose fires once, when the socket closes locally or remotely.
	EventClose
	// EventError fires on a relay-reported or locally detected protocol
	// error that does not by itself close the connection.
	EventError
)

// Event is the single type carried on the transport's event channel; only
// the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventSessionCreated, EventSessionReady, EventSessionActive
	State wire.SessionState

	// EventPeerConnected, EventJSONMessage, EventBinaryMessage
	Peer wire.PublicKey

	// EventJSONMessage, EventBinaryMessage, EventSessionFinished
	SessionID wire.SessionID

	// EventJSONMessage
	JSON []byte

	// EventBinaryMessage
	Bytes []byte

	// EventError
	Err error
}
