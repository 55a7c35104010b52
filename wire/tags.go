// Package wire implements the binary frame codec the relay and its clients
// speak over the WebSocket transport: a fixed identity/version header
// followed by a single tag byte that discriminates every layer of message,
// with the whole frame deflate-compressed before it hits the socket.
package wire

import "fmt"

// Tag is a single discriminator byte. Every layer of the wire format (the
// request/response envelope, the transparent subtype, the opaque subtype,
// the server-message kind, the payload encoding) reuses this type so a
// decoder can treat them uniformly.
type Tag byte

// NOOP is reserved as the zero value of every tag enumeration below and
// must never be written to the wire; encoding a frame still carrying a
// NOOP tag anywhere is a programming error, not a valid message.
const NOOP Tag = 0

// Envelope tags.
const (
	TRANSPARENT Tag = iota + 1
	OPAQUE
)

// Transparent subtype tags.
const (
	HANDSHAKE_SERVER Tag = iota + 1
	HANDSHAKE_PEER
)

// Opaque subtype tags.
const (
	OPAQUE_SERVER Tag = iota + 1
	OPAQUE_PEER
)

// Server-message kind tags.
const (
	ERROR Tag = iota + 1
	SESSION_NEW
	SESSION_CREATED
	SESSION_READY_NOTIFY
	SESSION_READY
	SESSION_CONNECTION

	// SESSION_ACTIVE_NOTIFY is reserved to keep this taxonomy's byte values
	// stable across implementations (§6); this relay never emits or expects
	// it. Readiness for SESSION_ACTIVE is instead driven entirely by
	// SESSION_CONNECTION: the server already knows a session is active as
	// soon as every pairwise connection has been registered, so there is
	// nothing a separate client-sent notify would add.
	SESSION_ACTIVE_NOTIFY
	SESSION_ACTIVE
	SESSION_CLOSE
	SESSION_FINISHED

	// IDENTIFY is a relay-local extension, not part of the otherwise fixed
	// server-kind taxonomy: immediately after the server-Noise handshake
	// completes, a client announces its long-term public key so the relay
	// can route transparent and opaque frames addressed to it by that key.
	// It is appended after SESSION_FINISHED so every other kind keeps the
	// byte value this taxonomy promises.
	IDENTIFY
)

// Encoding tags.
const (
	ENCODING_BLOB Tag = iota + 1
	ENCODING_JSON
)

// Identity and version header carried at the front of every frame, ahead
// of the tag byte. Frames with any other identity or version are rejected
// before the tag is even inspected.
var (
	FrameIdentity = [4]byte{'P', 'S', 'I', 'G'}
	FrameVersion  = [2]byte{0x00, 0x01}
)

// MaxBufferSize bounds every length-prefixed read; a length exceeding this
// is rejected as ErrMaxBufferSize before any allocation happens.
const MaxBufferSize = 16 * 1024 * 1024

func (t Tag) String() string {
	switch t {
	case NOOP:
		return "NOOP"
	case TRANSPARENT:
		return "TRANSPARENT"
	case OPAQUE:
		return "OPAQUE"
	case HANDSHAKE_SERVER:
		return "HANDSHAKE_SERVER"
	case HANDSHAKE_PEER:
		return "HANDSHAKE_PEER"
	case OPAQUE_SERVER:
		return "OPAQUE_SERVER"
	case OPAQUE_PEER:
		return "OPAQUE_PEER"
	case ERROR:
		return "ERROR"
	case SESSION_NEW:
		return "SESSION_NEW"
	case SESSION_CREATED:
		return "SESSION_CREATED"
	case SESSION_READY_NOTIFY:
		return "SESSION_READY_NOTIFY"
	case SESSION_READY:
		return "SESSION_READY"
	case SESSION_CONNECTION:
		return "SESSION_CONNECTION"
	case SESSION_ACTIVE_NOTIFY:
		return "SESSION_ACTIVE_NOTIFY"
	case SESSION_ACTIVE:
		return "SESSION_ACTIVE"
	case SESSION_CLOSE:
		return "SESSION_CLOSE"
	case SESSION_FINISHED:
		return "SESSION_FINISHED"
	case ENCODING_BLOB:
		return "ENCODING_BLOB"
	case ENCODING_JSON:
		return "ENCODING_JSON"
	default:
		return fmt.Sprintf("Tag(%d)", byte(t))
	}
}
