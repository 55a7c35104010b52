// Package noise implements the Noise Protocol Framework handshake this
// relay uses for every encrypted channel, both the client-to-server control
// channel and the peer-to-peer channels tunneled through it.
//
// Every channel speaks the same fixed NN pattern: two ephemeral-only
// messages ("-> e", "<- e, ee"), no static keys inside the Noise layer at
// all. Peer identity is never authenticated by Noise here; it is
// authenticated out of band by session membership (a participant's static
// public key is only ever used as a session/routing identifier, never fed
// into the handshake). This keeps the primitive identical for both channel
// kinds and keeps key compromise of one channel from exposing another.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/flynn/noise"
)

// PatternName is the fixed Noise pattern string this relay speaks. It is
// the value carried in the "NOISE PATTERN" PEM block and checked against on
// decode so a keypair document cannot silently be reused under a different
// protocol.
const PatternName = "Noise_NN_25519_ChaChaPoly_SHA256"

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("noise: handshake not complete")
	// ErrHandshakeComplete indicates the handshake has already finished.
	ErrHandshakeComplete = errors.New("noise: handshake already complete")
)

// HandshakeRole defines whether we initiate or respond to a handshake.
type HandshakeRole uint8

const (
	// Initiator sends the first message ("-> e").
	Initiator HandshakeRole = iota
	// Responder sends the second message ("<- e, ee").
	Responder
)

// Handshake drives one NN handshake to completion and yields the cipher
// states both sides will use to seal the channel afterward.
type Handshake struct {
	role       HandshakeRole
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
	timestamp  int64
}

// NewHandshake creates a new NN pattern handshake in the given role.
func NewHandshake(role HandshakeRole) (*Handshake, error) {
	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	config := noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   role == Initiator,
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("noise: failed to create handshake state: %w", err)
	}

	return &Handshake{
		role:      role,
		state:     state,
		timestamp: time.Now().Unix(),
	}, nil
}

// WriteMessage produces the next outbound handshake message.
//
// The initiator calls this once with receivedMessage == nil to produce
// "-> e"; the handshake is not complete after this call, the initiator must
// still call ReadMessage with the responder's reply.
//
// The responder calls this once with receivedMessage set to the
// initiator's message; it reads "-> e" and writes "<- e, ee" in the same
// call, completing the handshake and populating both cipher states.
func (h *Handshake) WriteMessage(payload, receivedMessage []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}

	if h.role == Initiator {
		return h.writeInitiatorMessage(payload)
	}
	return h.writeResponderMessage(payload, receivedMessage)
}

func (h *Handshake) writeInitiatorMessage(payload []byte) ([]byte, bool, error) {
	message, _, _, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("noise: initiator write failed: %w", err)
	}
	// Cipher states aren't available until the responder's message is read.
	return message, false, nil
}

func (h *Handshake) writeResponderMessage(payload, receivedMessage []byte) ([]byte, bool, error) {
	if receivedMessage == nil {
		return nil, false, fmt.Errorf("noise: responder requires the initiator's message")
	}

	if _, _, _, err := h.state.ReadMessage(nil, receivedMessage); err != nil {
		return nil, false, fmt.Errorf("noise: responder read failed: %w", err)
	}

	message, sendCipher, recvCipher, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("noise: responder write failed: %w", err)
	}

	h.sendCipher = sendCipher
	h.recvCipher = recvCipher
	h.complete = true

	return message, true, nil
}

// ReadMessage processes a received handshake message. Only the initiator
// calls this, to read the responder's "<- e, ee" reply; doing so completes
// the handshake and populates both cipher states.
func (h *Handshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}
	if h.role != Initiator {
		return nil, false, fmt.Errorf("noise: only the initiator reads a response message")
	}

	payload, recvCipher, sendCipher, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("noise: initiator read response failed: %w", err)
	}

	h.recvCipher = recvCipher
	h.sendCipher = sendCipher
	h.complete = true

	return payload, true, nil
}

// IsComplete reports whether the handshake has finished and cipher states
// are available.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// CipherStates returns the send and receive cipher states after a
// successful handshake. The send cipher seals outgoing messages, the
// receive cipher opens incoming ones.
func (h *Handshake) CipherStates() (*noise.CipherState, *noise.CipherState, error) {
	if !h.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	if h.sendCipher == nil || h.recvCipher == nil {
		return nil, nil, fmt.Errorf("noise: cipher states not available")
	}
	return h.sendCipher, h.recvCipher, nil
}

// Timestamp returns the handshake's creation time, used by callers that
// want to bound how long a half-open handshake may sit idle.
func (h *Handshake) Timestamp() int64 {
	return h.timestamp
}
