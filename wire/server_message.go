package wire

import "fmt"

// ServerMessage is the decrypted payload of an opaque-server envelope: a
// control message exchanged between a client and the relay's session
// manager. Exactly one of the typed fields below is populated, selected by
// Kind.
type ServerMessage struct {
	Kind Tag

	// ERROR
	ErrorCode uint16
	ErrorText string

	// SESSION_NEW
	NewSessionParticipants []PublicKey

	// SESSION_CREATED, SESSION_READY, SESSION_ACTIVE
	State SessionState

	// SESSION_READY_NOTIFY, SESSION_ACTIVE_NOTIFY, SESSION_CLOSE, SESSION_FINISHED
	SessionID SessionID

	// SESSION_CONNECTION
	ConnectionPeerKey PublicKey

	// IDENTIFY
	IdentityKey PublicKey
}

// Encode serializes the message into w, writing the kind tag followed by
// whatever fields that kind carries.
func (m ServerMessage) Encode(w *Writer) error {
	if err := w.Tag(m.Kind); err != nil {
		return err
	}

	switch m.Kind {
	case ERROR:
		w.Uint16(m.ErrorCode)
		return w.String(m.ErrorText)

	case SESSION_NEW:
		w.Uint32(uint32(len(m.NewSessionParticipants)))
		for _, p := range m.NewSessionParticipants {
			if err := w.Bytes(p[:]); err != nil {
				return err
			}
		}
		return nil

	case SESSION_CREATED, SESSION_READY, SESSION_ACTIVE:
		return m.State.Encode(w)

	case SESSION_READY_NOTIFY, SESSION_ACTIVE_NOTIFY, SESSION_CLOSE, SESSION_FINISHED:
		idBytes, err := m.SessionID.MarshalBinary()
		if err != nil {
			return fmt.Errorf("wire: failed to marshal session id: %w", err)
		}
		return w.Bytes(idBytes)

	case SESSION_CONNECTION:
		idBytes, err := m.SessionID.MarshalBinary()
		if err != nil {
			return fmt.Errorf("wire: failed to marshal session id: %w", err)
		}
		if err := w.Bytes(idBytes); err != nil {
			return err
		}
		return w.Bytes(m.ConnectionPeerKey[:])

	case IDENTIFY:
		return w.Bytes(m.IdentityKey[:])

	default:
		return ErrUnknownKind
	}
}

// DecodeServerMessage reads a ServerMessage body written by Encode.
func DecodeServerMessage(r *Reader) (ServerMessage, error) {
	var m ServerMessage
	m.Kind = r.Tag()
	if r.Err() != nil {
		return m, r.Err()
	}

	switch m.Kind {
	case ERROR:
		m.ErrorCode = r.Uint16()
		m.ErrorText = r.String()

	case SESSION_NEW:
		n := r.Uint32()
		if r.Err() != nil {
			return m, r.Err()
		}
		m.NewSessionParticipants = make([]PublicKey, 0, n)
		for i := uint32(0); i < n; i++ {
			b := r.Bytes()
			if r.Err() != nil {
				return m, r.Err()
			}
			var pk PublicKey
			copy(pk[:], b)
			m.NewSessionParticipants = append(m.NewSessionParticipants, pk)
		}

	case SESSION_CREATED, SESSION_READY, SESSION_ACTIVE:
		state, err := DecodeSessionState(r)
		if err != nil {
			return m, err
		}
		m.State = state

	case SESSION_READY_NOTIFY, SESSION_ACTIVE_NOTIFY, SESSION_CLOSE, SESSION_FINISHED:
		idBytes := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		if err := m.SessionID.UnmarshalBinary(idBytes); err != nil {
			return m, fmt.Errorf("wire: failed to unmarshal session id: %w", err)
		}

	case SESSION_CONNECTION:
		idBytes := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		if err := m.SessionID.UnmarshalBinary(idBytes); err != nil {
			return m, fmt.Errorf("wire: failed to unmarshal session id: %w", err)
		}
		peer := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		copy(m.ConnectionPeerKey[:], peer)

	case IDENTIFY:
		key := r.Bytes()
		if r.Err() != nil {
			return m, r.Err()
		}
		copy(m.IdentityKey[:], key)

	default:
		return m, ErrUnknownKind
	}

	return m, r.Err()
}
