package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	flynoise "github.com/flynn/noise"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/polysig-go/mpcdriver"
	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/session"
	"github.com/opd-ai/polysig-go/wire"
)

// ErrNoSessionState is returned when a caller asks to resolve a party
// number before the transport has observed any SessionCreated/Ready/Active
// message.
var ErrNoSessionState = errors.New("client: no session state known yet")

// Transport is the participant side of the relay protocol: one WebSocket
// connection, its server-Noise channel, and a lazily-populated table of
// peer-Noise channels.
type Transport struct {
	ws     *websocket.Conn
	ownKey wire.PublicKey

	writeMu sync.Mutex

	serverHandshake *noise.Handshake
	sendCipher      *flynoise.CipherState
	recvCipher      *flynoise.CipherState

	mu           sync.Mutex
	peers        map[wire.PublicKey]*peerChannel
	sessionState *wire.SessionState

	events    chan Event
	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the relay at url, completes the server-Noise handshake as
// initiator, announces ownKey, and starts the background event loop.
func Connect(url string, ownKey wire.PublicKey) (*Transport, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: failed to dial relay: %w", err)
	}

	t := &Transport{
		ws:     ws,
		ownKey: ownKey,
		peers:  make(map[wire.PublicKey]*peerChannel),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	hs, err := noise.NewHandshake(noise.Initiator)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("client: failed to start server handshake: %w", err)
	}
	t.serverHandshake = hs

	msg1, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("client: failed to write handshake message: %w", err)
	}
	if err := t.writeRequest(wire.RequestMessage{
		Kind:        wire.TRANSPARENT,
		Transparent: &wire.TransparentMessage{Kind: wire.HANDSHAKE_SERVER, Message: msg1},
	}); err != nil {
		ws.Close()
		return nil, err
	}

	go t.readLoop()
	return t, nil
}

// Events returns the channel the event loop publishes on. It is closed
// once the connection finishes shutting down, after a final EventClose.
func (t *Transport) Events() <-chan Event {
	return t.events
}

func (t *Transport) writeRequest(req wire.RequestMessage) error {
	frame, err := req.Encode()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *Transport) sendControl(msg wire.ServerMessage) error {
	if t.sendCipher == nil {
		return fmt.Errorf("client: server channel not yet established")
	}
	w := wire.NewWriter()
	if err := msg.Encode(w); err != nil {
		return err
	}
	ciphertext := t.sendCipher.Encrypt(nil, nil, w.Body())
	return t.writeRequest(wire.RequestMessage{
		Kind: wire.OPAQUE,
		Opaque: &wire.OpaqueMessage{
			Kind:     wire.OPAQUE_SERVER,
			Envelope: wire.SealedEnvelope{Encoding: wire.ENCODING_BLOB, Payload: ciphertext},
		},
	})
}

// NewSession asks the relay to create a session owned by this client.
func (t *Transport) NewSession(participants []wire.PublicKey) error {
	return t.sendControl(wire.ServerMessage{Kind: wire.SESSION_NEW, NewSessionParticipants: participants})
}

// NotifyReady tells the relay this client is ready within session id.
func (t *Transport) NotifyReady(id wire.SessionID) error {
	return t.sendControl(wire.ServerMessage{Kind: wire.SESSION_READY_NOTIFY, SessionID: id})
}

// RegisterConnection tells the relay a pairwise peer handshake with peer
// has completed within session id.
func (t *Transport) RegisterConnection(id wire.SessionID, peer wire.PublicKey) error {
	return t.sendControl(wire.ServerMessage{Kind: wire.SESSION_CONNECTION, SessionID: id, ConnectionPeerKey: peer})
}

// CloseSession asks the relay to tear down session id.
func (t *Transport) CloseSession(id wire.SessionID) error {
	return t.sendControl(wire.ServerMessage{Kind: wire.SESSION_CLOSE, SessionID: id})
}

// PeerKeyForParty implements bridge.Sender, resolving a protocol party
// number against the most recently observed session state.
func (t *Transport) PeerKeyForParty(party mpcdriver.PartyNumber) (wire.PublicKey, error) {
	t.mu.Lock()
	state := t.sessionState
	t.mu.Unlock()
	if state == nil {
		return wire.PublicKey{}, ErrNoSessionState
	}
	key, ok := session.PeerKey(*state, int(party))
	if !ok {
		return wire.PublicKey{}, fmt.Errorf("client: no peer for party %d", party)
	}
	return key, nil
}

// SendJSON implements bridge.Sender: it encrypts value as JSON under
// peer's channel, opening that channel first if needed.
func (t *Transport) SendJSON(peer wire.PublicKey, sessionID wire.SessionID, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("client: failed to marshal JSON payload: %w", err)
	}
	return t.sendToPeer(peer, sessionID, wire.ENCODING_JSON, payload)
}

// SendBlob encrypts a raw byte payload under peer's channel.
func (t *Transport) SendBlob(peer wire.PublicKey, sessionID wire.SessionID, data []byte) error {
	return t.sendToPeer(peer, sessionID, wire.ENCODING_BLOB, data)
}

func (t *Transport) sendToPeer(peer wire.PublicKey, sessionID wire.SessionID, encoding wire.Tag, payload []byte) error {
	t.mu.Lock()
	ch, ok := t.peers[peer]
	if !ok {
		ch = t.openPeerChannelLocked(peer)
	}
	if !ch.established() {
		ch.queue = append(ch.queue, queuedMessage{sessionID: sessionID, encoding: encoding, payload: payload})
		t.mu.Unlock()
		return nil
	}
	ciphertext := ch.sendCipher.Encrypt(nil, nil, payload)
	t.mu.Unlock()
	return t.dispatchOpaquePeer(peer, sessionID, encoding, ciphertext)
}

// openPeerChannelLocked creates a channel entry for peer and, if the
// lexicographic handshake rule says this client initiates toward it,
// starts the handshake immediately. Callers hold t.mu.
func (t *Transport) openPeerChannelLocked(peer wire.PublicKey) *peerChannel {
	ch := &peerChannel{}
	t.peers[peer] = ch

	if !t.shouldInitiateLocked(peer) {
		return ch
	}

	hs, err := noise.NewHandshake(noise.Initiator)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "openPeerChannelLocked"}).WithError(err).Error("failed to start peer handshake")
		return ch
	}
	msg1, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "openPeerChannelLocked"}).WithError(err).Error("failed to write peer handshake message")
		return ch
	}
	ch.handshake = hs

	go func() {
		if err := t.writeRequest(wire.RequestMessage{
			Kind:        wire.TRANSPARENT,
			Transparent: &wire.TransparentMessage{Kind: wire.HANDSHAKE_PEER, PeerKey: peer, Message: msg1},
		}); err != nil {
			logrus.WithFields(logrus.Fields{"function": "openPeerChannelLocked"}).WithError(err).Warn("failed to send peer handshake message")
		}
	}()
	return ch
}

func (t *Transport) shouldInitiateLocked(peer wire.PublicKey) bool {
	if t.sessionState == nil {
		return false
	}
	for _, p := range session.Connections(*t.sessionState, t.ownKey) {
		if p == peer {
			return true
		}
	}
	return false
}

func (t *Transport) dispatchOpaquePeer(peer wire.PublicKey, sessionID wire.SessionID, encoding wire.Tag, ciphertext []byte) error {
	id := sessionID
	return t.writeRequest(wire.RequestMessage{
		Kind: wire.OPAQUE,
		Opaque: &wire.OpaqueMessage{
			Kind:      wire.OPAQUE_PEER,
			PeerKey:   peer,
			SessionID: &id,
			Envelope:  wire.SealedEnvelope{Encoding: encoding, Payload: ciphertext},
		},
	})
}

// Close shuts down the connection. The event loop will emit a final
// EventClose before its events channel closes.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.ws.Close()
	})
	return err
}
