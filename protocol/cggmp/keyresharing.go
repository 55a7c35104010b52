package cggmp

import (
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// ReshareInputs mirrors original_source's KeyResharingInputs: OldShare is
// this party's existing share (nil if it held no init share), OldHolders
// is the set that contributed to the value being reshared, NewHolders is
// the full new committee, and NewThreshold is the new committee's
// reconstruction threshold.
type ReshareInputs struct {
	OldShare           *secp256k1.ModNScalar
	AccountVerifyingKey *secp256k1.JacobianPoint
	OldHolders         []mpcdriver.PartyNumber
	NewHolders         []mpcdriver.PartyNumber
	NewThreshold       int
}

// KeyResharingDriver redistributes an existing threshold secret across a
// (possibly different) holder set and threshold while preserving the
// account verifying key, via Desmedt-Jajodia sub-sharing: each old holder
// Lagrange-weights its share into a fresh degree-(new_threshold-1)
// polynomial and sub-shares that polynomial to every new holder. Grounded
// on original_source/crates/driver/src/cggmp/key_resharing.rs one level up
// from its concrete synedrion state machine.
type KeyResharingDriver struct {
	self         mpcdriver.PartyNumber
	selfID       *secp256k1.ModNScalar
	inputs       ReshareInputs
	isOldHolder  bool

	round uint16

	poly            *polynomial
	selfCommitments []*secp256k1.JacobianPoint

	commitments map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint
	subshares   map[mpcdriver.PartyNumber]*secp256k1.ModNScalar

	cached map[uint16][]mpcdriver.RoundMessage[DKGMessage]
}

var _ mpcdriver.Driver[DKGMessage, ThresholdKeyShare] = (*KeyResharingDriver)(nil)

// NewKeyResharingDriver constructs a resharing driver for self, one of
// inputs.NewHolders.
func NewKeyResharingDriver(self mpcdriver.PartyNumber, inputs ReshareInputs) (*KeyResharingDriver, error) {
	selfID, err := Identifier(self)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range inputs.NewHolders {
		if p == self {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("cggmp: %w: self %d is not a new holder", ErrUnknownIdentifier, self)
	}
	isOldHolder := inputs.OldShare != nil

	oldHolders := append([]mpcdriver.PartyNumber(nil), inputs.OldHolders...)
	sort.Slice(oldHolders, func(i, j int) bool { return oldHolders[i] < oldHolders[j] })
	inputs.OldHolders = oldHolders

	return &KeyResharingDriver{
		self:        self,
		selfID:      selfID,
		inputs:      inputs,
		isOldHolder: isOldHolder,
		round:       1,
		commitments: make(map[mpcdriver.PartyNumber][]*secp256k1.JacobianPoint),
		subshares:   make(map[mpcdriver.PartyNumber]*secp256k1.ModNScalar),
		cached:      make(map[uint16][]mpcdriver.RoundMessage[DKGMessage]),
	}, nil
}

// needs is how many OTHER old holders this party must still hear from;
// an old holder contributes its own commitment/subshare locally.
func (d *KeyResharingDriver) needs() int {
	n := len(d.inputs.OldHolders)
	if d.isOldHolder {
		n--
	}
	return n
}

// expectedTotal is how many entries a map should hold once a round is
// complete: received entries from the other old holders, plus this
// party's own entry when it is itself an old holder.
func (d *KeyResharingDriver) expectedTotal() int {
	return d.needs() + boolToInt(d.isOldHolder)
}

func (d *KeyResharingDriver) RoundInfo() mpcdriver.RoundInfo {
	switch d.round {
	case 2:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.commitments) == d.expectedTotal()}
	case 3:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.subshares) == d.expectedTotal()}
	default:
		return mpcdriver.RoundInfo{RoundNumber: d.round}
	}
}

func (d *KeyResharingDriver) Proceed() ([]mpcdriver.OutgoingRoundMessage[DKGMessage], error) {
	switch d.round {
	case 1:
		var msgs []mpcdriver.OutgoingRoundMessage[DKGMessage]
		if d.isOldHolder {
			lambda, err := lagrangeCoefficient(d.selfID, identifiers(d.inputs.OldHolders))
			if err != nil {
				return nil, err
			}
			weighted := new(secp256k1.ModNScalar).Mul2(lambda, d.inputs.OldShare)
			d.poly = newPolynomial(d.inputs.NewThreshold-1, weighted)
			d.selfCommitments = d.poly.commitments()
			body := DKGMessage{Commitments: pointsToBytes(d.selfCommitments)}
			msgs = broadcastDKG(d.inputs.NewHolders, d.self, body)
			d.commitments[d.self] = d.selfCommitments
		}
		d.round = 2
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	case 2:
		if len(d.commitments) != d.expectedTotal() {
			return nil, fmt.Errorf("cggmp: resharing round 2 proceed called before round 1 commitments are complete")
		}
		var msgs []mpcdriver.OutgoingRoundMessage[DKGMessage]
		if d.isOldHolder {
			for _, p := range d.inputs.NewHolders {
				if p == d.self {
					continue
				}
				recipientID, err := Identifier(p)
				if err != nil {
					return nil, err
				}
				sub := d.poly.evaluate(recipientID)
				subBytes := sub.Bytes()
				msgs = append(msgs, mpcdriver.OutgoingRoundMessage[DKGMessage]{Receiver: p, Body: DKGMessage{Share: subBytes[:]}})
			}
			d.subshares[d.self] = d.poly.evaluate(d.selfID)
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

func (d *KeyResharingDriver) HandleIncoming(msg mpcdriver.RoundMessage[DKGMessage]) error {
	if msg.Round == 0 {
		return mpcdriver.ErrInvalidRound
	}
	if msg.Round > d.round {
		d.cached[msg.Round] = append(d.cached[msg.Round], msg)
		return nil
	}
	return d.ingest(msg)
}

func (d *KeyResharingDriver) ingest(msg mpcdriver.RoundMessage[DKGMessage]) error {
	switch msg.Round {
	case 2:
		points, err := bytesSliceToPoints(msg.Body.Commitments)
		if err != nil {
			return fmt.Errorf("cggmp: bad resharing commitment from party %d: %w", msg.Sender, err)
		}
		d.commitments[msg.Sender] = points
	case 3:
		var sub secp256k1.ModNScalar
		if overflow := sub.SetByteSlice(msg.Body.Share); overflow {
			return fmt.Errorf("cggmp: bad subshare from party %d: scalar overflow", msg.Sender)
		}
		senderCommitments, ok := d.commitments[msg.Sender]
		if !ok {
			return fmt.Errorf("cggmp: subshare from party %d arrived before its commitments", msg.Sender)
		}
		expected := evaluateCommitments(senderCommitments, d.selfID)
		actual := scalarPoint(&sub)
		if !jacobianEqual(expected, actual) {
			return fmt.Errorf("%w: from party %d", ErrFeldmanVerification, msg.Sender)
		}
		d.subshares[msg.Sender] = &sub
	default:
		return ErrInvalidRound
	}
	return nil
}

func (d *KeyResharingDriver) replayCached() error {
	pending := d.cached[d.round]
	delete(d.cached, d.round)
	for _, msg := range pending {
		if err := d.ingest(msg); err != nil {
			return err
		}
	}
	return nil
}

// TryFinalizeRound sums every old holder's subshare into this party's new
// share, and independently recomputes the group public key from the old
// holders' published constant-term commitments, rejecting the run if it
// does not match the account verifying key the caller supplied.
func (d *KeyResharingDriver) TryFinalizeRound() (*ThresholdKeyShare, error) {
	if d.round != 3 || len(d.subshares) != d.expectedTotal() {
		return nil, nil
	}

	newShare := new(secp256k1.ModNScalar)
	for _, s := range d.subshares {
		newShare.Add(s)
	}

	groupPublicKey := &secp256k1.JacobianPoint{}
	for _, c := range d.commitments {
		groupPublicKey = addPoints(groupPublicKey, c[0])
	}
	if !jacobianEqual(groupPublicKey, d.inputs.AccountVerifyingKey) {
		return nil, ErrAccountKeyMismatch
	}

	verifyingShares := make(map[mpcdriver.PartyNumber]*secp256k1.JacobianPoint, len(d.inputs.NewHolders))
	for _, p := range d.inputs.NewHolders {
		pid, err := Identifier(p)
		if err != nil {
			return nil, err
		}
		share := &secp256k1.JacobianPoint{}
		for _, c := range d.commitments {
			share = addPoints(share, evaluateCommitments(c, pid))
		}
		verifyingShares[p] = share
	}

	return &ThresholdKeyShare{
		Identifier:      d.self,
		Secret:          newShare,
		GroupPublicKey:  groupPublicKey,
		Threshold:       d.inputs.NewThreshold,
		VerifyingShares: verifyingShares,
	}, nil
}

func identifiers(parties []mpcdriver.PartyNumber) []*secp256k1.ModNScalar {
	out := make([]*secp256k1.ModNScalar, len(parties))
	for i, p := range parties {
		id, _ := Identifier(p)
		out[i] = id
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
