package session

import "github.com/opd-ai/polysig-go/wire"

// State is the client-side view of a session: its id and the full ordered
// participant list as advertised by the server.
type State = wire.SessionState

// Connections returns the suffix of AllParticipants strictly after ownKey,
// enforcing the lexicographic handshake rule: a peer only initiates a Noise
// handshake toward peers later than itself in the list, so each unordered
// pair handshakes exactly once (the earlier peer is always the initiator,
// the later one the responder).
//
// If ownKey is not present, or is the last entry, the result is an empty
// slice — never an error.
func Connections(s State, ownKey wire.PublicKey) []wire.PublicKey {
	for i, p := range s.AllParticipants {
		if p == ownKey {
			if i+1 >= len(s.AllParticipants) {
				return nil
			}
			return s.AllParticipants[i+1:]
		}
	}
	return nil
}

// PeerKey resolves a protocol party number (1-indexed across
// AllParticipants) to its public key.
func PeerKey(s State, partyNumber int) (wire.PublicKey, bool) {
	if partyNumber < 1 || partyNumber > len(s.AllParticipants) {
		return wire.PublicKey{}, false
	}
	return s.AllParticipants[partyNumber-1], true
}

// PartyNumber resolves a public key to its 1-indexed party number within
// the session, the inverse of PeerKey.
func PartyNumber(s State, key wire.PublicKey) (int, bool) {
	for i, p := range s.AllParticipants {
		if p == key {
			return i + 1, true
		}
	}
	return 0, false
}
