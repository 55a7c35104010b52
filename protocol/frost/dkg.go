package frost

import (
	"crypto/rand"
	"fmt"
	"sort"

	"filippo.io/edwards25519"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// DKGMessage is the wire body frost's three-round DKG exchanges. Exactly
// one field is populated per message: Commitments for the round-1
// broadcast (the same body sent to every other party), Share for the
// round-2 p2p package (a distinct value per receiver).
type DKGMessage struct {
	Commitments [][]byte `json:"commitments,omitempty"`
	Share       []byte   `json:"share,omitempty"`
}

// DKGDriver runs the FROST-Ed25519 distributed key generation rounds
// described in original_source/crates/driver/src/frost/ed25519/key_gen.rs:
// round 1 broadcasts a Feldman commitment to each party's secret
// polynomial, round 2 privately distributes per-recipient Shamir shares,
// and round 3 locally sums the received shares into a final key share. The
// terminal round needs no further network round-trip, so finalization
// happens directly out of the round-2 check (see TryFinalizeRound).
type DKGDriver struct {
	self         mpcdriver.PartyNumber
	selfID       *edwards25519.Scalar
	threshold    int
	participants []mpcdriver.PartyNumber

	round uint16

	poly            *polynomial
	selfCommitments []*commitment

	commitments map[mpcdriver.PartyNumber][]*commitment
	shares      map[mpcdriver.PartyNumber]*edwards25519.Scalar

	cached map[uint16][]mpcdriver.RoundMessage[DKGMessage]

	randomScalar func() *edwards25519.Scalar
}

var _ mpcdriver.Driver[DKGMessage, KeyShare] = (*DKGDriver)(nil)

// NewDKGDriver constructs a FROST DKG driver for self, a member of
// participants (1-indexed party numbers, duplicates rejected), requiring
// threshold shares to reconstruct the group secret.
func NewDKGDriver(self mpcdriver.PartyNumber, threshold int, participants []mpcdriver.PartyNumber) (*DKGDriver, error) {
	if threshold < 1 || threshold > len(participants) {
		return nil, fmt.Errorf("frost: threshold %d out of range for %d participants", threshold, len(participants))
	}
	selfID, err := Identifier(self)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range participants {
		if p == self {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("frost: %w: self %d is not in the participant list", ErrUnknownIdentifier, self)
	}
	sorted := append([]mpcdriver.PartyNumber(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &DKGDriver{
		self:         self,
		selfID:       selfID,
		threshold:    threshold,
		participants: sorted,
		round:        1,
		commitments:  make(map[mpcdriver.PartyNumber][]*commitment),
		shares:       make(map[mpcdriver.PartyNumber]*edwards25519.Scalar),
		cached:       make(map[uint16][]mpcdriver.RoundMessage[DKGMessage]),
		randomScalar: randomEdwardsScalar,
	}, nil
}

func randomEdwardsScalar() *edwards25519.Scalar {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(buf[:])
	if err != nil {
		panic(err)
	}
	return s
}

func (d *DKGDriver) needs() int {
	return len(d.participants) - 1
}

// RoundInfo reports the current round and whether enough peer packages
// have arrived to finalize or advance.
func (d *DKGDriver) RoundInfo() mpcdriver.RoundInfo {
	switch d.round {
	case 2:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.commitments) == d.needs()}
	case 3:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.shares) == d.needs()}
	default:
		return mpcdriver.RoundInfo{RoundNumber: d.round}
	}
}

// Proceed advances the driver by one round, producing the outgoing
// packages for the round it is entering.
func (d *DKGDriver) Proceed() ([]mpcdriver.OutgoingRoundMessage[DKGMessage], error) {
	switch d.round {
	case 1:
		d.poly = newPolynomial(d.threshold-1, d.randomScalar)
		d.selfCommitments = d.poly.commitments()
		body := DKGMessage{Commitments: pointsToBytes(d.selfCommitments)}
		msgs := d.broadcastToOthers(body)
		d.round = 2
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	case 2:
		if len(d.commitments) != d.needs() {
			return nil, fmt.Errorf("frost: dkg round 2 proceed called before round 1 commitments are complete")
		}
		msgs := make([]mpcdriver.OutgoingRoundMessage[DKGMessage], 0, d.needs())
		for _, p := range d.participants {
			if p == d.self {
				continue
			}
			recipientID, err := Identifier(p)
			if err != nil {
				return nil, err
			}
			share := d.poly.evaluate(recipientID)
			msgs = append(msgs, mpcdriver.OutgoingRoundMessage[DKGMessage]{
				Receiver: p,
				Body:     DKGMessage{Share: share.Bytes()},
			})
		}
		d.round = 3
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	default:
		return nil, ErrInvalidRound
	}
}

func (d *DKGDriver) broadcastToOthers(body DKGMessage) []mpcdriver.OutgoingRoundMessage[DKGMessage] {
	msgs := make([]mpcdriver.OutgoingRoundMessage[DKGMessage], 0, d.needs())
	for _, p := range d.participants {
		if p == d.self {
			continue
		}
		msgs = append(msgs, mpcdriver.OutgoingRoundMessage[DKGMessage]{Broadcast: true, Receiver: p, Body: body})
	}
	return msgs
}

// HandleIncoming records a peer's package, caching it if it is addressed
// to a round this driver has not yet reached.
func (d *DKGDriver) HandleIncoming(msg mpcdriver.RoundMessage[DKGMessage]) error {
	if msg.Round == 0 {
		return mpcdriver.ErrInvalidRound
	}
	if msg.Round > d.round {
		d.cached[msg.Round] = append(d.cached[msg.Round], msg)
		return nil
	}
	return d.ingest(msg)
}

func (d *DKGDriver) ingest(msg mpcdriver.RoundMessage[DKGMessage]) error {
	switch msg.Round {
	case 2:
		points, err := bytesToPoints(msg.Body.Commitments)
		if err != nil {
			return fmt.Errorf("frost: bad commitment package from party %d: %w", msg.Sender, err)
		}
		d.commitments[msg.Sender] = points
	case 3:
		share, err := edwards25519.NewScalar().SetCanonicalBytes(msg.Body.Share)
		if err != nil {
			return fmt.Errorf("frost: bad share from party %d: %w", msg.Sender, err)
		}
		senderCommitments, ok := d.commitments[msg.Sender]
		if !ok {
			return fmt.Errorf("frost: share from party %d arrived before its commitments", msg.Sender)
		}
		expected := evaluateCommitments(senderCommitments, d.selfID)
		actual := edwards25519.NewIdentityPoint().ScalarBaseMult(share)
		if expected.Equal(actual) != 1 {
			return fmt.Errorf("frost: share from party %d failed Feldman verification", msg.Sender)
		}
		d.shares[msg.Sender] = share
	default:
		return ErrInvalidRound
	}
	return nil
}

func (d *DKGDriver) replayCached() error {
	pending := d.cached[d.round]
	delete(d.cached, d.round)
	for _, msg := range pending {
		if err := d.ingest(msg); err != nil {
			return err
		}
	}
	return nil
}

func (d *DKGDriver) allCommitments() map[mpcdriver.PartyNumber][]*commitment {
	all := make(map[mpcdriver.PartyNumber][]*commitment, len(d.participants))
	all[d.self] = d.selfCommitments
	for p, c := range d.commitments {
		all[p] = c
	}
	return all
}

// TryFinalizeRound computes the final key share once every party's share
// has arrived; the protocol's notional "round 3" is purely local, so this
// is the only finalization point this driver ever reaches.
func (d *DKGDriver) TryFinalizeRound() (*KeyShare, error) {
	if d.round != 3 || len(d.shares) != d.needs() {
		return nil, nil
	}

	selfShare := d.poly.evaluate(d.selfID)
	secret := edwards25519.NewScalar().Set(selfShare)
	for _, s := range d.shares {
		secret = edwards25519.NewScalar().Add(secret, s)
	}

	all := d.allCommitments()
	groupPublicKey := edwards25519.NewIdentityPoint()
	for _, c := range all {
		groupPublicKey.Add(groupPublicKey, c[0])
	}

	verifyingShares := make(map[mpcdriver.PartyNumber]*edwards25519.Point, len(d.participants))
	for _, p := range d.participants {
		pid, err := Identifier(p)
		if err != nil {
			return nil, err
		}
		share := edwards25519.NewIdentityPoint()
		for _, c := range all {
			share.Add(share, evaluateCommitments(c, pid))
		}
		verifyingShares[p] = share
	}

	if expected := edwards25519.NewIdentityPoint().ScalarBaseMult(secret); expected.Equal(verifyingShares[d.self]) != 1 {
		return nil, fmt.Errorf("frost: locally derived secret does not match its own verifying share")
	}

	return &KeyShare{
		Identifier:      d.self,
		Secret:          secret,
		GroupPublicKey:  groupPublicKey,
		VerifyingShares: verifyingShares,
	}, nil
}

func pointsToBytes(points []*commitment) [][]byte {
	out := make([][]byte, len(points))
	for i, p := range points {
		out[i] = p.Bytes()
	}
	return out
}

func bytesToPoints(raw [][]byte) ([]*commitment, error) {
	out := make([]*commitment, len(raw))
	for i, b := range raw {
		p, err := edwards25519.NewIdentityPoint().SetBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
