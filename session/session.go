// Package session implements the server-side session lifecycle: creating
// sessions, recording pairwise peer connections, deciding when a session
// becomes active, and reaping sessions that have gone idle past their TTL.
package session

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/polysig-go/wire"
)

// PublicKey is a participant's static identity, used here purely as a
// routing/membership key.
type PublicKey = wire.PublicKey

// ID identifies a session; a version-4 UUID.
type ID = uuid.UUID

// connectionPair is an unordered pair of participants that have completed
// their peer handshake.
type connectionPair struct {
	a, b PublicKey
}

func newConnectionPair(a, b PublicKey) connectionPair {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return connectionPair{a: a, b: b}
}

// Session is one MPC committee's rendezvous state, as tracked server-side.
type Session struct {
	Owner        PublicKey
	Participants []PublicKey
	connections  map[connectionPair]struct{}
	lastAccess   time.Time
}

// PublicKeys returns owner followed by all participants, in the order the
// owner originally supplied them. This order is the sole source of the
// lexicographic handshake rule (spec §3, §9): every member must observe the
// same order, so it is fixed once at session creation and never
// reconstructed from an unordered collection.
func (s *Session) PublicKeys() []PublicKey {
	keys := make([]PublicKey, 0, 1+len(s.Participants))
	keys = append(keys, s.Owner)
	keys = append(keys, s.Participants...)
	return keys
}

// RegisterConnection records that a and b have completed a peer handshake.
// Order of a, b is irrelevant to membership tests.
func (s *Session) RegisterConnection(a, b PublicKey) {
	s.connections[newConnectionPair(a, b)] = struct{}{}
}

func (s *Session) hasConnection(a, b PublicKey) bool {
	_, ok := s.connections[newConnectionPair(a, b)]
	return ok
}

// IsActive reports whether every unordered pair of members (owner included)
// has a recorded connection. A session with fewer than two members is
// trivially active.
func (s *Session) IsActive() bool {
	members := s.PublicKeys()
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			if !s.hasConnection(members[i], members[j]) {
				return false
			}
		}
	}
	return true
}

var (
	// ErrSessionNotFound is returned when an operation references an id
	// with no matching session.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrOwnerIsParticipant is returned if a session request lists the
	// owner among its own participants.
	ErrOwnerIsParticipant = errors.New("session: owner cannot also be a participant")
)

// Manager owns the full set of in-flight sessions. Mutation is serialized
// by an internal read-write lock: writers are new/register/remove, readers
// are get/is-active.
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*Session
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[ID]*Session)}
}

// NewSession creates and stores a session for owner and participants,
// returning its freshly minted id.
func (m *Manager) NewSession(owner PublicKey, participants []PublicKey) (ID, error) {
	seen := make(map[PublicKey]struct{}, len(participants))
	ordered := make([]PublicKey, 0, len(participants))
	for _, p := range participants {
		if p == owner {
			return ID{}, ErrOwnerIsParticipant
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		ordered = append(ordered, p)
	}

	id := uuid.New()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &Session{
		Owner:        owner,
		Participants: ordered,
		connections:  make(map[connectionPair]struct{}),
		lastAccess:   time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewSession",
		"session_id": id,
		"parties":    len(ordered) + 1,
	}).Debug("session created")

	return id, nil
}

// GetSession returns the session for id, or ErrSessionNotFound.
func (m *Manager) GetSession(id ID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// RegisterConnection records a pairwise peer connection within session id.
func (m *Manager) RegisterConnection(id ID, a, b PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.RegisterConnection(a, b)
	s.lastAccess = time.Now()
	return nil
}

// IsActive reports whether session id satisfies the all-pairs-connected
// invariant.
func (m *Manager) IsActive(id ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, ErrSessionNotFound
	}
	return s.IsActive(), nil
}

// TouchSession refreshes a session's last-access timestamp.
func (m *Manager) TouchSession(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.lastAccess = time.Now()
	return nil
}

// ExpiredKeys returns the ids of sessions whose last access is older than
// ttl.
func (m *Manager) ExpiredKeys(ttl time.Duration) []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var expired []ID
	for id, s := range m.sessions {
		if s.lastAccess.Add(ttl).Before(now) {
			expired = append(expired, id)
		}
	}
	return expired
}

// RemoveSession deletes a session. Removing an unknown id is a no-op.
func (m *Manager) RemoveSession(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// State builds the wire-visible SessionState for a stored session.
func (m *Manager) State(id ID) (wire.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return wire.SessionState{}, ErrSessionNotFound
	}
	return wire.SessionState{SessionID: id, AllParticipants: s.PublicKeys()}, nil
}
