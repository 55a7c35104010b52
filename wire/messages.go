package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// PublicKey identifies a participant on the wire; it is never interpreted
// as anything but an opaque routing key at this layer.
type PublicKey [32]byte

// SessionID is a version-4 UUID identifying one MPC session.
type SessionID = uuid.UUID

// SessionState is the client-visible view of a session: its id and the
// full ordered participant list (owner first). The connections(own_key)
// projection that enforces the lexicographic handshake rule lives in the
// session package, which treats this struct as wire input, not storage.
type SessionState struct {
	SessionID      SessionID
	AllParticipants []PublicKey
}

// Encode writes the session state body (without a tag; callers that embed
// this in a tagged message write the tag themselves).
func (s SessionState) Encode(w *Writer) error {
	idBytes, err := s.SessionID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("wire: failed to marshal session id: %w", err)
	}
	if err := w.Bytes(idBytes); err != nil {
		return err
	}
	w.Uint32(uint32(len(s.AllParticipants)))
	for _, p := range s.AllParticipants {
		if err := w.Bytes(p[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSessionState reads a SessionState body written by Encode.
func DecodeSessionState(r *Reader) (SessionState, error) {
	var s SessionState
	idBytes := r.Bytes()
	if r.Err() != nil {
		return s, r.Err()
	}
	if err := s.SessionID.UnmarshalBinary(idBytes); err != nil {
		return s, fmt.Errorf("wire: failed to unmarshal session id: %w", err)
	}

	n := r.Uint32()
	if r.Err() != nil {
		return s, r.Err()
	}
	s.AllParticipants = make([]PublicKey, 0, n)
	for i := uint32(0); i < n; i++ {
		b := r.Bytes()
		if r.Err() != nil {
			return s, r.Err()
		}
		var pk PublicKey
		copy(pk[:], b)
		s.AllParticipants = append(s.AllParticipants, pk)
	}
	return s, nil
}

// SealedEnvelope is the ciphertext unit carried inside an opaque message:
// an encoding tag, the sealed payload, and whether this copy is a
// broadcast (same ciphertext addressed to every recipient) or a
// point-to-point message.
type SealedEnvelope struct {
	Encoding  Tag
	Payload   []byte
	Broadcast bool
}

func (e SealedEnvelope) Encode(w *Writer) error {
	if err := w.Tag(e.Encoding); err != nil {
		return err
	}
	if err := w.Bytes(e.Payload); err != nil {
		return err
	}
	w.Bool(e.Broadcast)
	return nil
}

func DecodeSealedEnvelope(r *Reader) (SealedEnvelope, error) {
	var e SealedEnvelope
	e.Encoding = r.Tag()
	if r.Err() != nil {
		return e, r.Err()
	}
	if e.Encoding != ENCODING_BLOB && e.Encoding != ENCODING_JSON {
		return e, ErrUnknownKind
	}
	e.Payload = r.Bytes()
	if r.Err() != nil {
		return e, r.Err()
	}
	e.Broadcast = r.Bool()
	return e, r.Err()
}

// TransparentMessage is a frame the relay forwards or consumes without
// ever decrypting it: either a server-handshake message (consumed locally
// by the connection's own Noise state machine) or a peer-handshake message
// (relayed verbatim to the named public key).
type TransparentMessage struct {
	Kind      Tag // HANDSHAKE_SERVER or HANDSHAKE_PEER
	PeerKey   PublicKey // only set for HANDSHAKE_PEER
	Message   []byte
}

func (m TransparentMessage) Encode(w *Writer) error {
	if m.Kind != HANDSHAKE_SERVER && m.Kind != HANDSHAKE_PEER {
		return ErrUnknownKind
	}
	if err := w.Tag(m.Kind); err != nil {
		return err
	}
	if m.Kind == HANDSHAKE_PEER {
		if err := w.Bytes(m.PeerKey[:]); err != nil {
			return err
		}
	}
	return w.Bytes(m.Message)
}

func DecodeTransparentMessage(r *Reader) (TransparentMessage, error) {
	var m TransparentMessage
	m.Kind = r.Tag()
	if r.Err() != nil {
		return m, r.Err()
	}
	switch m.Kind {
	case HANDSHAKE_SERVER:
		m.Message = r.Bytes()
	case HANDSHAKE_PEER:
		peer := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		copy(m.PeerKey[:], peer)
		m.Message = r.Bytes()
	default:
		return m, ErrUnknownKind
	}
	return m, r.Err()
}

// OpaqueMessage carries an encrypted envelope, either destined for the
// server's control-message handler or for a named peer within a session.
type OpaqueMessage struct {
	Kind      Tag // OPAQUE_SERVER or OPAQUE_PEER
	PeerKey   PublicKey         // only set for OPAQUE_PEER
	SessionID *SessionID        // only set for OPAQUE_PEER
	Envelope  SealedEnvelope
}

func (m OpaqueMessage) Encode(w *Writer) error {
	if err := w.Tag(m.Kind); err != nil {
		return err
	}
	if m.Kind == OPAQUE_PEER {
		if err := w.Bytes(m.PeerKey[:]); err != nil {
			return err
		}
		w.Bool(m.SessionID != nil)
		if m.SessionID != nil {
			idBytes, err := m.SessionID.MarshalBinary()
			if err != nil {
				return fmt.Errorf("wire: failed to marshal session id: %w", err)
			}
			if err := w.Bytes(idBytes); err != nil {
				return err
			}
		}
	}
	return m.Envelope.Encode(w)
}

func DecodeOpaqueMessage(r *Reader) (OpaqueMessage, error) {
	var m OpaqueMessage
	m.Kind = r.Tag()
	if r.Err() != nil {
		return m, r.Err()
	}
	switch m.Kind {
	case OPAQUE_SERVER:
	case OPAQUE_PEER:
		peer := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		copy(m.PeerKey[:], peer)

		hasID := r.Bool()
		if r.Err() != nil {
			return m, r.Err()
		}
		if hasID {
			idBytes := r.Bytes()
			if r.Err() != nil {
				return m, r.Err()
			}
			var id SessionID
			if err := id.UnmarshalBinary(idBytes); err != nil {
				return m, fmt.Errorf("wire: failed to unmarshal session id: %w", err)
			}
			m.SessionID = &id
		}
	default:
		return m, ErrUnknownKind
	}

	env, err := DecodeSealedEnvelope(r)
	if err != nil {
		return m, err
	}
	m.Envelope = env
	return m, nil
}

// RequestMessage and ResponseMessage are the two top-level envelope kinds
// exchanged over the transport: each carries either a transparent or an
// opaque message.
type RequestMessage struct {
	Kind        Tag // TRANSPARENT or OPAQUE
	Transparent *TransparentMessage
	Opaque      *OpaqueMessage
}

func (m RequestMessage) Encode() ([]byte, error) {
	w := NewWriter()
	if err := w.Tag(m.Kind); err != nil {
		return nil, err
	}
	switch m.Kind {
	case TRANSPARENT:
		if m.Transparent == nil {
			return nil, fmt.Errorf("wire: transparent request missing body")
		}
		if err := m.Transparent.Encode(w); err != nil {
			return nil, err
		}
	case OPAQUE:
		if m.Opaque == nil {
			return nil, fmt.Errorf("wire: opaque request missing body")
		}
		if err := m.Opaque.Encode(w); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownKind
	}
	return EncodeFrame(w.Body())
}

func DecodeRequestMessage(frame []byte) (RequestMessage, error) {
	var m RequestMessage
	body, err := DecodeFrame(frame)
	if err != nil {
		return m, err
	}
	r := NewReader(body)
	m.Kind = r.Tag()
	if r.Err() != nil {
		return m, r.Err()
	}
	switch m.Kind {
	case TRANSPARENT:
		t, err := DecodeTransparentMessage(r)
		if err != nil {
			return m, err
		}
		m.Transparent = &t
	case OPAQUE:
		o, err := DecodeOpaqueMessage(r)
		if err != nil {
			return m, err
		}
		m.Opaque = &o
	default:
		return m, ErrUnknownKind
	}
	return m, nil
}

// ResponseMessage mirrors RequestMessage; the relay uses the same envelope
// shape in both directions.
type ResponseMessage = RequestMessage

// EncodeResponseMessage and DecodeResponseMessage are aliases kept for
// call-site clarity where a response, not a request, is being handled.
func EncodeResponseMessage(m ResponseMessage) ([]byte, error) { return m.Encode() }
func DecodeResponseMessage(frame []byte) (ResponseMessage, error) {
	return DecodeRequestMessage(frame)
}
