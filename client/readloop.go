package client

import (
	"fmt"

	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/wire"
)

// readLoop is the socket's only reader and the only goroutine that emits
// events: it reads every inbound handshake message and decrypts every
// inbound frame. Outbound Noise work is not confined to it: a sender
// encrypts on its own goroutine, and starting a peer handshake writes the
// initiator's first message there too. State shared with senders (the
// peers table, each channel's queue and send cipher) is guarded by t.mu.
func (t *Transport) readLoop() {
	defer t.shutdown()
	for {
		_, raw, err := t.ws.ReadMessage()
		if err != nil {
			return
		}

		req, err := wire.DecodeRequestMessage(raw)
		if err != nil {
			t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: failed to decode frame: %w", err)})
			continue
		}

		switch req.Kind {
		case wire.TRANSPARENT:
			t.handleTransparent(req.Transparent)
		case wire.OPAQUE:
			t.handleOpaque(req.Opaque)
		}
	}
}

func (t *Transport) shutdown() {
	t.ws.Close()
	t.emit(Event{Kind: EventClose})
	close(t.events)
}

func (t *Transport) emit(ev Event) {
	t.events <- ev
}

func (t *Transport) handleTransparent(msg *wire.TransparentMessage) {
	switch msg.Kind {
	case wire.HANDSHAKE_SERVER:
		t.handleServerHandshakeReply(msg.Message)
	case wire.HANDSHAKE_PEER:
		t.handlePeerHandshake(msg.PeerKey, msg.Message)
	}
}

func (t *Transport) handleServerHandshakeReply(message []byte) {
	if _, _, err := t.serverHandshake.ReadMessage(message); err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: server handshake failed: %w", err)})
		return
	}
	send, recv, err := t.serverHandshake.CipherStates()
	if err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}
	t.sendCipher = send
	t.recvCipher = recv

	if err := t.sendControl(wire.ServerMessage{Kind: wire.IDENTIFY, IdentityKey: t.ownKey}); err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}
	t.emit(Event{Kind: EventServerConnected})
}

// handlePeerHandshake processes an inbound HANDSHAKE_PEER message, either
// completing a handshake this client initiated or responding to one a peer
// initiated toward it.
func (t *Transport) handlePeerHandshake(peer wire.PublicKey, message []byte) {
	t.mu.Lock()
	ch, ok := t.peers[peer]
	t.mu.Unlock()

	if ok && ch.handshake != nil {
		t.completeInitiatorHandshake(peer, ch, message)
		return
	}
	t.respondToPeerHandshake(peer, message)
}

func (t *Transport) completeInitiatorHandshake(peer wire.PublicKey, ch *peerChannel, message []byte) {
	if _, _, err := ch.handshake.ReadMessage(message); err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: peer handshake failed: %w", err)})
		return
	}
	send, recv, err := ch.handshake.CipherStates()
	if err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}

	t.mu.Lock()
	ch.sendCipher = send
	ch.recvCipher = recv
	ch.handshake = nil
	t.mu.Unlock()

	t.flushQueue(peer, ch)
	t.emit(Event{Kind: EventPeerConnected, Peer: peer})
}

func (t *Transport) respondToPeerHandshake(peer wire.PublicKey, message []byte) {
	hs, err := noise.NewHandshake(noise.Responder)
	if err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}
	reply, complete, err := hs.WriteMessage(nil, message)
	if err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: peer handshake failed: %w", err)})
		return
	}
	if err := t.writeRequest(wire.RequestMessage{
		Kind:        wire.TRANSPARENT,
		Transparent: &wire.TransparentMessage{Kind: wire.HANDSHAKE_PEER, PeerKey: peer, Message: reply},
	}); err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}
	if !complete {
		return
	}

	send, recv, err := hs.CipherStates()
	if err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}

	t.mu.Lock()
	newCh := &peerChannel{sendCipher: send, recvCipher: recv}
	if existing, ok := t.peers[peer]; ok {
		newCh.queue = existing.queue
	}
	t.peers[peer] = newCh
	t.mu.Unlock()

	t.flushQueue(peer, newCh)
	t.emit(Event{Kind: EventPeerConnected, Peer: peer})
}

func (t *Transport) flushQueue(peer wire.PublicKey, ch *peerChannel) {
	t.mu.Lock()
	queued := ch.queue
	ch.queue = nil
	ciphertexts := make([][]byte, len(queued))
	for i, m := range queued {
		ciphertexts[i] = ch.sendCipher.Encrypt(nil, nil, m.payload)
	}
	t.mu.Unlock()

	for i, m := range queued {
		if err := t.dispatchOpaquePeer(peer, m.sessionID, m.encoding, ciphertexts[i]); err != nil {
			t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: failed to flush queued message: %w", err)})
		}
	}
}

func (t *Transport) handleOpaque(msg *wire.OpaqueMessage) {
	switch msg.Kind {
	case wire.OPAQUE_SERVER:
		t.handleServerControl(msg.Envelope)
	case wire.OPAQUE_PEER:
		t.handlePeerMessage(msg)
	}
}

func (t *Transport) handleServerControl(env wire.SealedEnvelope) {
	if t.recvCipher == nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: server channel not yet established")})
		return
	}
	plaintext, err := t.recvCipher.Decrypt(nil, nil, env.Payload)
	if err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: failed to open server envelope: %w", err)})
		return
	}
	ctrl, err := wire.DecodeServerMessage(wire.NewReader(plaintext))
	if err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return
	}

	switch ctrl.Kind {
	case wire.ERROR:
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: relay error %d: %s", ctrl.ErrorCode, ctrl.ErrorText)})
	case wire.SESSION_CREATED:
		t.setSessionState(ctrl.State)
		t.emit(Event{Kind: EventSessionCreated, State: ctrl.State})
	case wire.SESSION_READY:
		t.setSessionState(ctrl.State)
		t.emit(Event{Kind: EventSessionReady, State: ctrl.State})
	case wire.SESSION_ACTIVE:
		t.setSessionState(ctrl.State)
		t.emit(Event{Kind: EventSessionActive, State: ctrl.State})
	case wire.SESSION_FINISHED:
		t.emit(Event{Kind: EventSessionFinished, SessionID: ctrl.SessionID})
	default:
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: unexpected control message kind %v", ctrl.Kind)})
	}
}

func (t *Transport) setSessionState(state wire.SessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionState = &state
}

func (t *Transport) handlePeerMessage(msg *wire.OpaqueMessage) {
	t.mu.Lock()
	ch, ok := t.peers[msg.PeerKey]
	t.mu.Unlock()
	if !ok || !ch.established() {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: message from peer with no established channel")})
		return
	}

	plaintext, err := ch.recvCipher.Decrypt(nil, nil, msg.Envelope.Payload)
	if err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("client: failed to open peer envelope: %w", err)})
		return
	}

	var sessionID wire.SessionID
	if msg.SessionID != nil {
		sessionID = *msg.SessionID
	}

	switch msg.Envelope.Encoding {
	case wire.ENCODING_JSON:
		t.emit(Event{Kind: EventJSONMessage, Peer: msg.PeerKey, SessionID: sessionID, JSON: plaintext})
	case wire.ENCODING_BLOB:
		t.emit(Event{Kind: EventBinaryMessage, Peer: msg.PeerKey, SessionID: sessionID, Bytes: plaintext})
	}
}
