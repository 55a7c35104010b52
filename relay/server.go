package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/session"
	"github.com/opd-ai/polysig-go/wire"
)

// ServerConfig configures a relay server's buffering and session-expiry
// behavior.
type ServerConfig struct {
	SessionTTL      time.Duration
	ReapInterval    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultServerConfig returns reasonable production defaults: sessions
// expire after ten minutes of inactivity, checked on a thirty-second
// reaper tick.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		SessionTTL:      10 * time.Minute,
		ReapInterval:    30 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Server is the relay. Each connection gets its own server-Noise
// handshake; sessions are tracked in a single shared session.Manager.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	sessions *session.Manager
	meeting  *meetingPoint

	mu    sync.RWMutex
	peers map[wire.PublicKey]*peerConn

	readyMu sync.Mutex
	ready   map[session.ID]map[wire.PublicKey]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer constructs a relay server with its own session manager.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg:      cfg,
		sessions: session.NewManager(),
		meeting:  newMeetingPoint(),
		peers:    make(map[wire.PublicKey]*peerConn),
		ready:    make(map[session.ID]map[wire.PublicKey]struct{}),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// connection closes. A Server is an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "ServeHTTP"}).WithError(err).Warn("websocket upgrade failed")
		return
	}
	s.serve(newPeerConn(ws))
}

// Run drives the session-expiry reaper until ctx is cancelled or Close is
// called; callers typically run it in its own goroutine.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.reapExpiredSessions()
		}
	}
}

func (s *Server) reapExpiredSessions() {
	for _, id := range s.sessions.ExpiredKeys(s.cfg.SessionTTL) {
		s.sessions.RemoveSession(id)
		s.readyMu.Lock()
		delete(s.ready, id)
		s.readyMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":   "reapExpiredSessions",
			"session_id": id,
		}).Debug("reaped expired session")
	}
}

// Close stops the reaper and closes every live connection.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, p := range s.peers {
			p.ws.Close()
		}
	})
}

func (s *Server) serve(conn *peerConn) {
	defer s.disconnect(conn)

	hs, err := noise.NewHandshake(noise.Responder)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "serve"}).WithError(err).Error("failed to start server handshake")
		return
	}
	conn.handshake = hs

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		if conn.sendCipher == nil {
			if req, ok := decodeMeetingRequest(raw); ok {
				resp := s.meeting.join(req)
				payload, err := json.Marshal(resp)
				if err != nil {
					continue
				}
				if err := conn.writeRaw(websocket.TextMessage, payload); err != nil {
					return
				}
				continue
			}
		}

		req, err := wire.DecodeRequestMessage(raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{"function": "serve"}).WithError(err).Debug("failed to decode frame")
			continue
		}

		switch req.Kind {
		case wire.TRANSPARENT:
			if err := s.handleTransparent(conn, req.Transparent); err != nil {
				logrus.WithFields(logrus.Fields{"function": "serve"}).WithError(err).Warn("transparent handling failed")
			}
		case wire.OPAQUE:
			if err := s.handleOpaque(conn, req.Opaque); err != nil {
				logrus.WithFields(logrus.Fields{"function": "serve"}).WithError(err).Warn("opaque handling failed")
			}
		}
	}
}

func (s *Server) register(conn *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[conn.publicKey] = conn
}

func (s *Server) lookupPeer(key wire.PublicKey) (*peerConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[key]
	return p, ok
}

func (s *Server) disconnect(conn *peerConn) {
	conn.ws.Close()
	if !conn.identified {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.peers[conn.publicKey]; ok && current == conn {
		delete(s.peers, conn.publicKey)
	}
}

func (s *Server) handleTransparent(conn *peerConn, msg *wire.TransparentMessage) error {
	switch msg.Kind {
	case wire.HANDSHAKE_SERVER:
		return s.handleServerHandshake(conn, msg.Message)
	case wire.HANDSHAKE_PEER:
		return s.routeTransparentPeer(conn, msg)
	default:
		return wire.ErrUnknownKind
	}
}

func (s *Server) handleServerHandshake(conn *peerConn, message []byte) error {
	reply, complete, err := conn.handshake.WriteMessage(nil, message)
	if err != nil {
		return fmt.Errorf("relay: server handshake failed: %w", err)
	}
	if err := conn.writeRequest(wire.RequestMessage{
		Kind:        wire.TRANSPARENT,
		Transparent: &wire.TransparentMessage{Kind: wire.HANDSHAKE_SERVER, Message: reply},
	}); err != nil {
		return err
	}
	if !complete {
		return nil
	}
	send, recv, err := conn.handshake.CipherStates()
	if err != nil {
		return err
	}
	conn.sendCipher = send
	conn.recvCipher = recv
	return nil
}

// routeTransparentPeer relays a peer-handshake message verbatim. The
// transparent envelope carries no session id (handshakes happen before a
// session is necessarily known to both sides), so routing here is purely
// by destination public key; a peer only attempts a handshake with a key
// it learned from its own session state, which is where session
// membership is actually enforced.
func (s *Server) routeTransparentPeer(conn *peerConn, msg *wire.TransparentMessage) error {
	target, ok := s.lookupPeer(msg.PeerKey)
	if !ok {
		return s.sendError(conn, 404, "peer not connected")
	}
	return target.writeRequest(wire.RequestMessage{
		Kind: wire.TRANSPARENT,
		Transparent: &wire.TransparentMessage{
			Kind:    wire.HANDSHAKE_PEER,
			PeerKey: conn.publicKey,
			Message: msg.Message,
		},
	})
}

func (s *Server) handleOpaque(conn *peerConn, msg *wire.OpaqueMessage) error {
	switch msg.Kind {
	case wire.OPAQUE_SERVER:
		return s.handleServerControl(conn, msg.Envelope)
	case wire.OPAQUE_PEER:
		return s.routeOpaquePeer(conn, msg)
	default:
		return wire.ErrUnknownKind
	}
}

// routeOpaquePeer forwards a peer-addressed ciphertext unread: the relay
// never holds the peer-channel key, so it cannot and does not decrypt
// msg.Envelope.Payload.
func (s *Server) routeOpaquePeer(conn *peerConn, msg *wire.OpaqueMessage) error {
	target, ok := s.lookupPeer(msg.PeerKey)
	if !ok {
		return s.sendError(conn, 404, "peer not connected")
	}
	forward := wire.OpaqueMessage{
		Kind:      wire.OPAQUE_PEER,
		PeerKey:   conn.publicKey,
		SessionID: msg.SessionID,
		Envelope:  msg.Envelope,
	}
	return target.writeRequest(wire.RequestMessage{Kind: wire.OPAQUE, Opaque: &forward})
}
