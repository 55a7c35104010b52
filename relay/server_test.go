package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	flynoise "github.com/flynn/noise"
	"github.com/gorilla/websocket"

	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/wire"
)

// testClient is a minimal stand-in for the real client transport, driving
// just enough of the server-Noise handshake and control protocol to
// exercise the relay end to end.
type testClient struct {
	t          *testing.T
	ws         *websocket.Conn
	publicKey  wire.PublicKey
	sendCipher *flynoise.CipherState
	recvCipher *flynoise.CipherState
}

func dialTestClient(t *testing.T, url string, publicKey wire.PublicKey) *testClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	hs, err := noise.NewHandshake(noise.Initiator)
	if err != nil {
		t.Fatalf("failed to create client handshake: %v", err)
	}

	msg1, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		t.Fatalf("failed to write msg1: %v", err)
	}
	req := wire.RequestMessage{
		Kind:        wire.TRANSPARENT,
		Transparent: &wire.TransparentMessage{Kind: wire.HANDSHAKE_SERVER, Message: msg1},
	}
	frame, err := req.Encode()
	if err != nil {
		t.Fatalf("failed to encode handshake frame: %v", err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("failed to send msg1: %v", err)
	}

	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read msg2: %v", err)
	}
	resp, err := wire.DecodeRequestMessage(raw)
	if err != nil {
		t.Fatalf("failed to decode msg2: %v", err)
	}
	if _, _, err := hs.ReadMessage(resp.Transparent.Message); err != nil {
		t.Fatalf("failed to complete handshake: %v", err)
	}

	send, recv, err := hs.CipherStates()
	if err != nil {
		t.Fatalf("failed to obtain cipher states: %v", err)
	}

	c := &testClient{t: t, ws: ws, publicKey: publicKey, sendCipher: send, recvCipher: recv}
	c.sendControl(wire.ServerMessage{Kind: wire.IDENTIFY, IdentityKey: publicKey})
	return c
}

func (c *testClient) sendControl(msg wire.ServerMessage) {
	c.t.Helper()
	w := wire.NewWriter()
	if err := msg.Encode(w); err != nil {
		c.t.Fatalf("failed to encode control message: %v", err)
	}
	ciphertext := c.sendCipher.Encrypt(nil, nil, w.Body())
	req := wire.RequestMessage{
		Kind: wire.OPAQUE,
		Opaque: &wire.OpaqueMessage{
			Kind:     wire.OPAQUE_SERVER,
			Envelope: wire.SealedEnvelope{Encoding: wire.ENCODING_BLOB, Payload: ciphertext},
		},
	}
	frame, err := req.Encode()
	if err != nil {
		c.t.Fatalf("failed to encode request: %v", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.t.Fatalf("failed to send control message: %v", err)
	}
}

func (c *testClient) recvControl() wire.ServerMessage {
	c.t.Helper()
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("failed to read frame: %v", err)
	}
	req, err := wire.DecodeRequestMessage(raw)
	if err != nil {
		c.t.Fatalf("failed to decode frame: %v", err)
	}
	plaintext, err := c.recvCipher.Decrypt(nil, nil, req.Opaque.Envelope.Payload)
	if err != nil {
		c.t.Fatalf("failed to open envelope: %v", err)
	}
	msg, err := wire.DecodeServerMessage(wire.NewReader(plaintext))
	if err != nil {
		c.t.Fatalf("failed to decode control message: %v", err)
	}
	return msg
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestRelaySessionLifecycleReachesActive(t *testing.T) {
	srv := NewServer(DefaultServerConfig())
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	owner := wire.PublicKey{1}
	member := wire.PublicKey{2}

	ownerClient := dialTestClient(t, wsURL(ts.URL), owner)
	memberClient := dialTestClient(t, wsURL(ts.URL), member)

	ownerClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_NEW, NewSessionParticipants: []wire.PublicKey{member}})
	created := ownerClient.recvControl()
	if created.Kind != wire.SESSION_CREATED {
		t.Fatalf("expected SESSION_CREATED, got %v", created.Kind)
	}
	sessionID := created.State.SessionID

	ownerClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_READY_NOTIFY, SessionID: sessionID})
	memberClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_READY_NOTIFY, SessionID: sessionID})

	ownerReady := ownerClient.recvControl()
	memberReady := memberClient.recvControl()
	if ownerReady.Kind != wire.SESSION_READY || memberReady.Kind != wire.SESSION_READY {
		t.Fatalf("expected both sides to receive SESSION_READY, got %v / %v", ownerReady.Kind, memberReady.Kind)
	}

	ownerClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_CONNECTION, SessionID: sessionID, ConnectionPeerKey: member})
	memberClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_CONNECTION, SessionID: sessionID, ConnectionPeerKey: owner})

	ownerActive := ownerClient.recvControl()
	memberActive := memberClient.recvControl()
	if ownerActive.Kind != wire.SESSION_ACTIVE || memberActive.Kind != wire.SESSION_ACTIVE {
		t.Fatalf("expected both sides to receive SESSION_ACTIVE, got %v / %v", ownerActive.Kind, memberActive.Kind)
	}

	ownerClient.sendControl(wire.ServerMessage{Kind: wire.SESSION_CLOSE, SessionID: sessionID})
	finished := ownerClient.recvControl()
	if finished.Kind != wire.SESSION_FINISHED || finished.SessionID != sessionID {
		t.Fatalf("expected SESSION_FINISHED for %v, got %+v", sessionID, finished)
	}
}

func TestRelayRejectsNewSessionWithOwnerAsParticipant(t *testing.T) {
	srv := NewServer(DefaultServerConfig())
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	owner := wire.PublicKey{3}
	client := dialTestClient(t, wsURL(ts.URL), owner)

	client.sendControl(wire.ServerMessage{Kind: wire.SESSION_NEW, NewSessionParticipants: []wire.PublicKey{owner}})
	resp := client.recvControl()
	if resp.Kind != wire.ERROR {
		t.Fatalf("expected ERROR, got %v", resp.Kind)
	}
}

func TestRelayReapsExpiredSessions(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.SessionTTL = 10 * time.Millisecond
	srv := NewServer(cfg)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	owner := wire.PublicKey{4}
	member := wire.PublicKey{5}
	client := dialTestClient(t, wsURL(ts.URL), owner)

	client.sendControl(wire.ServerMessage{Kind: wire.SESSION_NEW, NewSessionParticipants: []wire.PublicKey{member}})
	created := client.recvControl()

	time.Sleep(20 * time.Millisecond)
	srv.reapExpiredSessions()

	if _, err := srv.sessions.GetSession(created.State.SessionID); err == nil {
		t.Fatal("expected expired session to have been reaped")
	}
}
