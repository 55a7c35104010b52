package relay

import (
	"fmt"

	"github.com/opd-ai/polysig-go/session"
	"github.com/opd-ai/polysig-go/wire"
)

// handleServerControl decrypts an OPAQUE_SERVER envelope under the
// connection's server-channel cipher and dispatches the resulting
// ServerMessage by kind.
func (s *Server) handleServerControl(conn *peerConn, env wire.SealedEnvelope) error {
	if conn.recvCipher == nil {
		return fmt.Errorf("relay: server channel not yet established")
	}

	plaintext, err := conn.recvCipher.Decrypt(nil, nil, env.Payload)
	if err != nil {
		return fmt.Errorf("relay: failed to open server envelope: %w", err)
	}

	ctrl, err := wire.DecodeServerMessage(wire.NewReader(plaintext))
	if err != nil {
		return fmt.Errorf("relay: failed to decode control message: %w", err)
	}

	switch ctrl.Kind {
	case wire.IDENTIFY:
		conn.publicKey = ctrl.IdentityKey
		conn.identified = true
		s.register(conn)
		return nil
	case wire.SESSION_NEW:
		return s.handleSessionNew(conn, ctrl.NewSessionParticipants)
	case wire.SESSION_READY_NOTIFY:
		return s.handleSessionReadyNotify(conn, ctrl.SessionID)
	case wire.SESSION_CONNECTION:
		return s.handleSessionConnection(conn, ctrl.SessionID, ctrl.ConnectionPeerKey)
	case wire.SESSION_CLOSE:
		return s.handleSessionClose(conn, ctrl.SessionID)
	default:
		return s.sendError(conn, 400, "unsupported control message kind")
	}
}

func (s *Server) handleSessionNew(conn *peerConn, participants []wire.PublicKey) error {
	id, err := s.sessions.NewSession(conn.publicKey, participants)
	if err != nil {
		return s.sendError(conn, 400, err.Error())
	}
	state, err := s.sessions.State(id)
	if err != nil {
		return err
	}
	return s.sendControl(conn, wire.ServerMessage{Kind: wire.SESSION_CREATED, State: state})
}

func (s *Server) handleSessionReadyNotify(conn *peerConn, id wire.SessionID) error {
	if err := s.sessions.TouchSession(id); err != nil {
		return s.sendError(conn, 404, err.Error())
	}
	state, err := s.sessions.State(id)
	if err != nil {
		return err
	}

	s.readyMu.Lock()
	set, ok := s.ready[id]
	if !ok {
		set = make(map[wire.PublicKey]struct{})
		s.ready[id] = set
	}
	set[conn.publicKey] = struct{}{}
	allReady := len(set) >= len(state.AllParticipants)
	s.readyMu.Unlock()

	if !allReady {
		return nil
	}
	return s.broadcastToSession(state, wire.ServerMessage{Kind: wire.SESSION_READY, State: state})
}

// handleSessionConnection records a pairwise connection and broadcasts
// SESSION_ACTIVE once, from the registration that completes the session;
// readyMu serializes registrations so only one of them sees that change.
func (s *Server) handleSessionConnection(conn *peerConn, id wire.SessionID, peerKey wire.PublicKey) error {
	s.readyMu.Lock()
	wasActive, _ := s.sessions.IsActive(id)
	if err := s.sessions.RegisterConnection(id, conn.publicKey, peerKey); err != nil {
		s.readyMu.Unlock()
		return s.sendError(conn, 404, err.Error())
	}

	active, err := s.sessions.IsActive(id)
	s.readyMu.Unlock()
	if err != nil {
		return err
	}
	if wasActive || !active {
		return nil
	}

	state, err := s.sessions.State(id)
	if err != nil {
		return err
	}
	return s.broadcastToSession(state, wire.ServerMessage{Kind: wire.SESSION_ACTIVE, State: state})
}

// handleSessionClose removes the session and notifies only its owner, per
// the readiness protocol's close step. A close request from a connection
// other than the owner is answered with an error and changes nothing.
func (s *Server) handleSessionClose(conn *peerConn, id wire.SessionID) error {
	if sess, err := s.sessions.GetSession(id); err == nil && sess.Owner != conn.publicKey {
		return s.sendError(conn, 403, "only the session owner may close it")
	}
	s.sessions.RemoveSession(id)
	s.readyMu.Lock()
	delete(s.ready, id)
	s.readyMu.Unlock()
	return s.sendControl(conn, wire.ServerMessage{Kind: wire.SESSION_FINISHED, SessionID: id})
}

func (s *Server) broadcastToSession(state session.State, msg wire.ServerMessage) error {
	var firstErr error
	for _, key := range state.AllParticipants {
		peer, ok := s.lookupPeer(key)
		if !ok {
			continue
		}
		if err := s.sendControl(peer, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) sendControl(conn *peerConn, msg wire.ServerMessage) error {
	if conn.sendCipher == nil {
		return fmt.Errorf("relay: server channel not yet established")
	}

	w := wire.NewWriter()
	if err := msg.Encode(w); err != nil {
		return err
	}
	ciphertext := conn.sendCipher.Encrypt(nil, nil, w.Body())

	return conn.writeRequest(wire.RequestMessage{
		Kind: wire.OPAQUE,
		Opaque: &wire.OpaqueMessage{
			Kind:     wire.OPAQUE_SERVER,
			Envelope: wire.SealedEnvelope{Encoding: wire.ENCODING_BLOB, Payload: ciphertext},
		},
	})
}

func (s *Server) sendError(conn *peerConn, code uint16, text string) error {
	return s.sendControl(conn, wire.ServerMessage{Kind: wire.ERROR, ErrorCode: code, ErrorText: text})
}
