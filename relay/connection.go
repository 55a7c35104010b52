package relay

import (
	"sync"

	flynoise "github.com/flynn/noise"
	"github.com/gorilla/websocket"

	"github.com/opd-ai/polysig-go/noise"
	"github.com/opd-ai/polysig-go/wire"
)

// peerConn is one live WebSocket connection. Before the server-Noise
// handshake completes, publicKey is unset and the connection can only
// speak the handshake or meeting-point sub-protocols; afterward it is
// identified and can issue session control commands.
type peerConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	handshake  *noise.Handshake
	sendCipher *flynoise.CipherState
	recvCipher *flynoise.CipherState

	identified bool
	publicKey  wire.PublicKey
}

func newPeerConn(ws *websocket.Conn) *peerConn {
	return &peerConn{ws: ws}
}

// writeRequest encodes and sends a request frame, serializing concurrent
// writers (the connection's read loop and any broadcast fan-out targeting
// it share the same socket).
func (c *peerConn) writeRequest(req wire.RequestMessage) error {
	frame, err := req.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *peerConn) writeRaw(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}
