package cggmp

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// AuxMessage is AuxGenDriver's single-round broadcast body: a random salt
// contributed to the joint auxiliary session value.
type AuxMessage struct {
	Salt []byte `json:"salt"`
}

// AuxInfo is the output of the aux-gen phase: a session-wide value every
// signer has contributed entropy to and independently computed, used to
// domain-separate a subsequent SignatureDriver run so that aux-info from
// one signing session cannot be replayed into another.
type AuxInfo struct {
	SessionSalt [32]byte
}

// AuxGenDriver stands in for the Paillier/Pedersen auxiliary-parameter
// generation original_source's crates/driver/src/cggmp/aux_gen.rs performs
// before every CGGMP signing run. This package does not implement
// Paillier key generation (see DESIGN.md), so AuxGenDriver instead runs a
// single real broadcast round in which every signer contributes entropy to
// a shared session salt — structurally the same "every signer commits,
// everyone combines" shape as the real aux-gen round, without the
// zero-knowledge proofs of a well-formed Paillier modulus.
type AuxGenDriver struct {
	self         mpcdriver.PartyNumber
	participants []mpcdriver.PartyNumber

	round uint16

	selfSalt [32]byte
	salts    map[mpcdriver.PartyNumber][32]byte

	cached map[uint16][]mpcdriver.RoundMessage[AuxMessage]
}

var _ mpcdriver.Driver[AuxMessage, AuxInfo] = (*AuxGenDriver)(nil)

// NewAuxGenDriver constructs an aux-gen driver for self among participants.
func NewAuxGenDriver(self mpcdriver.PartyNumber, participants []mpcdriver.PartyNumber) (*AuxGenDriver, error) {
	found := false
	for _, p := range participants {
		if p == self {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("cggmp: %w: self %d is not a participant", ErrUnknownIdentifier, self)
	}
	return &AuxGenDriver{
		self:         self,
		participants: append([]mpcdriver.PartyNumber(nil), participants...),
		round:        1,
		salts:        make(map[mpcdriver.PartyNumber][32]byte),
		cached:       make(map[uint16][]mpcdriver.RoundMessage[AuxMessage]),
	}, nil
}

func (d *AuxGenDriver) needs() int { return len(d.participants) - 1 }

// RoundInfo reports readiness to finalize once every participant's salt
// has arrived; this driver has exactly one network round.
func (d *AuxGenDriver) RoundInfo() mpcdriver.RoundInfo {
	return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: d.round == 2 && len(d.salts) == d.needs()}
}

func (d *AuxGenDriver) Proceed() ([]mpcdriver.OutgoingRoundMessage[AuxMessage], error) {
	if d.round != 1 {
		return nil, ErrInvalidRound
	}
	if _, err := rand.Read(d.selfSalt[:]); err != nil {
		return nil, fmt.Errorf("cggmp: failed to generate aux salt: %w", err)
	}
	msgs := make([]mpcdriver.OutgoingRoundMessage[AuxMessage], 0, d.needs())
	for _, p := range d.participants {
		if p == d.self {
			continue
		}
		saltCopy := d.selfSalt
		msgs = append(msgs, mpcdriver.OutgoingRoundMessage[AuxMessage]{Broadcast: true, Receiver: p, Body: AuxMessage{Salt: saltCopy[:]}})
	}
	d.round = 2
	pending := d.cached[d.round]
	delete(d.cached, d.round)
	for _, msg := range pending {
		if err := d.ingest(msg); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (d *AuxGenDriver) HandleIncoming(msg mpcdriver.RoundMessage[AuxMessage]) error {
	if msg.Round == 0 {
		return mpcdriver.ErrInvalidRound
	}
	if msg.Round > d.round {
		d.cached[msg.Round] = append(d.cached[msg.Round], msg)
		return nil
	}
	return d.ingest(msg)
}

func (d *AuxGenDriver) ingest(msg mpcdriver.RoundMessage[AuxMessage]) error {
	if msg.Round != 2 {
		return ErrInvalidRound
	}
	if len(msg.Body.Salt) != 32 {
		return fmt.Errorf("cggmp: bad aux salt length from party %d", msg.Sender)
	}
	var salt [32]byte
	copy(salt[:], msg.Body.Salt)
	d.salts[msg.Sender] = salt
	return nil
}

// TryFinalizeRound combines every participant's salt via SHA-256, in
// participant-list order, once all have arrived.
func (d *AuxGenDriver) TryFinalizeRound() (*AuxInfo, error) {
	if d.round != 2 || len(d.salts) != d.needs() {
		return nil, nil
	}
	h := sha256.New()
	for _, p := range d.participants {
		salt := d.selfSalt
		if p != d.self {
			salt = d.salts[p]
		}
		h.Write(salt[:])
	}
	var out AuxInfo
	copy(out.SessionSalt[:], h.Sum(nil))
	return &out, nil
}
