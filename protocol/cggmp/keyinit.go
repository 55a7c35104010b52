package cggmp

import (
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// DKGMessage is the wire body KeyInitDriver and KeyResharingDriver
// exchange: Commitments for the round-1 broadcast (Feldman commitments to
// a polynomial), Share for the round-2 p2p Shamir share.
type DKGMessage struct {
	Commitments [][]byte `json:"commitments,omitempty"`
	Share       []byte   `json:"share,omitempty"`
}

// KeyInitDriver runs a t-of-t joint-Feldman DKG among exactly the parties
// assigned to the CGGMP key-init phase (§4.I: "parties with party_index <
// t"), producing a ThresholdKeyShare with threshold == len(participants).
// Grounded on original_source/crates/driver/src/cggmp/key_init.rs, whose
// driver this mirrors one level up from the concrete synedrion state
// machine the original consumes.
type KeyInitDriver struct {
	self         mpcdriver.PartyNumber
	selfID       *secp256k1.ModNScalar
	participants []mpcdriver.PartyNumber

	round uint16

	poly            *polynomial
	selfCommitments []*secp256k1.JacobianPoint

	commitments map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint
	shares      map[mpcdriver.PartyNumber]*secp256k1.ModNScalar

	cached map[uint16][]mpcdriver.RoundMessage[DKGMessage]
}

var _ mpcdriver.Driver[DKGMessage, ThresholdKeyShare] = (*KeyInitDriver)(nil)

// NewKeyInitDriver constructs a key-init driver for self, a member of the
// t-sized participants list.
func NewKeyInitDriver(self mpcdriver.PartyNumber, participants []mpcdriver.PartyNumber) (*KeyInitDriver, error) {
	selfID, err := Identifier(self)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range participants {
		if p == self {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("cggmp: %w: self %d is not a key-init participant", ErrUnknownIdentifier, self)
	}
	sorted := append([]mpcdriver.PartyNumber(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &KeyInitDriver{
		self:         self,
		selfID:       selfID,
		participants: sorted,
		round:        1,
		commitments:  make(map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint),
		shares:       make(map[mpcdriver.PartyNumber]*secp256k1.ModNScalar),
		cached:       make(map[uint16][]mpcdriver.RoundMessage[DKGMessage]),
	}, nil
}

func (d *KeyInitDriver) needs() int { return len(d.participants) - 1 }

// RoundInfo reports the driver's round and finalizability, per the shared
// two-network-round-plus-local-finalize convention used throughout this
// package: commitments arrive as round-2 messages, shares as round-3
// messages, and the key share is computed locally once all shares are in.
func (d *KeyInitDriver) RoundInfo() mpcdriver.RoundInfo {
	switch d.round {
	case 2:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.commitments) == d.needs()}
	case 3:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.shares) == d.needs()}
	default:
		return mpcdriver.RoundInfo{RoundNumber: d.round}
	}
}

func (d *KeyInitDriver) Proceed() ([]mpcdriver.OutgoingRoundMessage[DKGMessage], error) {
	switch d.round {
	case 1:
		d.poly = newPolynomial(len(d.participants)-1, randomScalar())
		d.selfCommitments = d.poly.commitments()
		body := DKGMessage{Commitments: pointsToBytes(d.selfCommitments)}
		msgs := broadcastDKG(d.participants, d.self, body)
		d.round = 2
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	case 2:
		if len(d.commitments) != d.needs() {
			return nil, fmt.Errorf("cggmp: key-init round 2 proceed called before round 1 commitments are complete")
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
			shareBytes := share.Bytes()
			msgs = append(msgs, mpcdriver.OutgoingRoundMessage[DKGMessage]{Receiver: p, Body: DKGMessage{Share: shareBytes[:]}})
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

func (d *KeyInitDriver) HandleIncoming(msg mpcdriver.RoundMessage[DKGMessage]) error {
	if msg.Round == 0 {
		return mpcdriver.ErrInvalidRound
	}
	if msg.Round > d.round {
		d.cached[msg.Round] = append(d.cached[msg.Round], msg)
		return nil
	}
	return d.ingest(msg)
}

func (d *KeyInitDriver) ingest(msg mpcdriver.RoundMessage[DKGMessage]) error {
	switch msg.Round {
	case 2:
		points, err := bytesSliceToPoints(msg.Body.Commitments)
		if err != nil {
			return fmt.Errorf("cggmp: bad commitment package from party %d: %w", msg.Sender, err)
		}
		d.commitments[msg.Sender] = points
	case 3:
		var share secp256k1.ModNScalar
		if overflow := share.SetByteSlice(msg.Body.Share); overflow {
			return fmt.Errorf("cggmp: bad share from party %d: scalar overflow", msg.Sender)
		}
		senderCommitments, ok := d.commitments[msg.Sender]
		if !ok {
			return fmt.Errorf("cggmp: share from party %d arrived before its commitments", msg.Sender)
		}
		expected := evaluateCommitments(senderCommitments, d.selfID)
		actual := scalarPoint(&share)
		if !jacobianEqual(expected, actual) {
			return fmt.Errorf("%w: from party %d", ErrFeldmanVerification, msg.Sender)
		}
		d.shares[msg.Sender] = &share
	default:
		return ErrInvalidRound
	}
	return nil
}

func (d *KeyInitDriver) replayCached() error {
	pending := d.cached[d.round]
	delete(d.cached, d.round)
	for _, msg := range pending {
		if err := d.ingest(msg); err != nil {
			return err
		}
	}
	return nil
}

func (d *KeyInitDriver) allCommitments() map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint {
	all := make(map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint, len(d.participants))
	all[d.self] = d.selfCommitments
	for p, c := range d.commitments {
		all[p] = c
	}
	return all
}

// TryFinalizeRound computes the final key share once every participant's
// share has arrived.
func (d *KeyInitDriver) TryFinalizeRound() (*ThresholdKeyShare, error) {
	if d.round != 3 || len(d.shares) != d.needs() {
		return nil, nil
	}

	secret := d.poly.evaluate(d.selfID)
	for _, s := range d.shares {
		secret.Add(s)
	}

	all := d.allCommitments()
	groupPublicKey := &secp256k1.JacobianPoint{}
	for _, c := range all {
		groupPublicKey = addPoints(groupPublicKey, c[0])
	}

	verifyingShares := make(map[mpcdriver.PartyNumber]*secp256k1.JacobianPoint, len(d.participants))
	for _, p := range d.participants {
		pid, err := Identifier(p)
		if err != nil {
			return nil, err
		}
		share := &secp256k1.JacobianPoint{}
		for _, c := range all {
			share = addPoints(share, evaluateCommitments(c, pid))
		}
		verifyingShares[p] = share
	}

	if expected := scalarPoint(secret); !jacobianEqual(expected, verifyingShares[d.self]) {
		return nil, fmt.Errorf("cggmp: locally derived secret does not match its own verifying share")
	}

	return &ThresholdKeyShare{
		Identifier:      d.self,
		Secret:          secret,
		GroupPublicKey:  groupPublicKey,
		Threshold:       len(d.participants),
		VerifyingShares: verifyingShares,
	}, nil
}

func broadcastDKG(participants []mpcdriver.PartyNumber, self mpcdriver.PartyNumber, body DKGMessage) []mpcdriver.OutgoingRoundMessage[DKGMessage] {
	msgs := make([]mpcdriver.OutgoingRoundMessage[DKGMessage], 0, len(participants)-1)
	for _, p := range participants {
		if p == self {
			continue
		}
		msgs = append(msgs, mpcdriver.OutgoingRoundMessage[DKGMessage]{Broadcast: true, Receiver: p, Body: body})
	}
	return msgs
}

func pointsToBytes(points []*secp256k1.JacobianPoint) [][]byte {
	out := make([][]byte, len(points))
	for i, p := range points {
		out[i] = pointToBytes(p)
	}
	return out
}

func bytesSliceToPoints(raw [][]byte) ([]*secp256k1.JacobianPoint, error) {
	out := make([]*secp256k1.JacobianPoint, len(raw))
	for i, b := range raw {
		p, err := bytesToPoint(b)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func jacobianEqual(a, b *secp256k1.JacobianPoint) bool {
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y) && a.Z.Equals(&b.Z)
}
