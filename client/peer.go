package client

import (
	flynoise "github.com/flynn/noise"

	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/wire"
)

// queuedMessage is an outbound payload waiting for its peer channel's
// handshake to complete.
type queuedMessage struct {
	sessionID wire.SessionID
	encoding  wire.Tag
	payload   []byte
}

// peerChannel tracks one peer-to-peer Noise channel's lifecycle: a
// handshake in progress, then the cipher states once it completes.
// Messages sent before completion are queued and released in order.
type peerChannel struct {
	handshake  *noise.Handshake
	sendCipher *flynoise.CipherState
	recvCipher *flynoise.CipherState
	queue      []queuedMessage
}

func (c *peerChannel) established() bool {
	return c.sendCipher != nil && c.recvCipher != nil
}
