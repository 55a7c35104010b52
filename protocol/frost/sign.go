package frost

import (
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"
	"sort"

	"filippo.io/edwards25519"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// ErrSignatureVerification is returned when the aggregated signature does
// not verify under the group public key, the one fatal error this driver
// can raise at finalization.
var ErrSignatureVerification = errors.New("frost: aggregated signature failed verification")

// SignMessage is the wire body FROST's two-round signing protocol
// exchanges: Hiding/Binding for the round-1 nonce commitment broadcast,
// Share for the round-2 signature share broadcast.
type SignMessage struct {
	Hiding  []byte `json:"hiding,omitempty"`
	Binding []byte `json:"binding,omitempty"`
	Share   []byte `json:"share,omitempty"`
}

// Signature is a standard 64-byte Ed25519 signature (R || S), verifiable
// with the stock crypto/ed25519 package under the DKG's GroupPublicKey.
type Signature struct {
	R []byte
	S []byte
}

// Bytes returns the canonical R||S encoding.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 64)
	out = append(out, s.R...)
	out = append(out, s.S...)
	return out
}

type nonceCommitment struct {
	hiding  *edwards25519.Point
	binding *edwards25519.Point
}

// SignDriver runs FROST-Ed25519 threshold signing: round 1 (commit)
// broadcasts hiding/binding nonce commitments, round 2 (share) broadcasts
// each signer's signature share once binding factors can be derived from
// every commitment, and finalization (the protocol's local "round 3"
// aggregation step) sums the shares into a standard Ed25519 signature.
type SignDriver struct {
	self           mpcdriver.PartyNumber
	selfID         *edwards25519.Scalar
	secret         *edwards25519.Scalar
	groupPublicKey *edwards25519.Point
	signers        []mpcdriver.PartyNumber
	message        []byte

	round uint16

	hidingNonce  *edwards25519.Scalar
	bindingNonce *edwards25519.Scalar

	groupCommitment *edwards25519.Point
	challenge       *edwards25519.Scalar

	commitments map[mpcdriver.PartyNumber]nonceCommitment
	shares      map[mpcdriver.PartyNumber]*edwards25519.Scalar

	cached map[uint16][]mpcdriver.RoundMessage[SignMessage]

	randomScalar func() *edwards25519.Scalar
}

var _ mpcdriver.Driver[SignMessage, Signature] = (*SignDriver)(nil)

// NewSignDriver constructs a signing driver for self, one of signers (at
// least min_signers of the DKG's committee), using secretShare (this
// party's KeyShare.Secret) against groupPublicKey, over message.
func NewSignDriver(self mpcdriver.PartyNumber, secretShare *edwards25519.Scalar, groupPublicKey *edwards25519.Point, signers []mpcdriver.PartyNumber, message []byte) (*SignDriver, error) {
	if len(signers) < 1 {
		return nil, ErrTooFewSigners
	}
	selfID, err := Identifier(self)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range signers {
		if p == self {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("frost: %w: self %d is not among the signers", ErrUnknownIdentifier, self)
	}
	sorted := append([]mpcdriver.PartyNumber(nil), signers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &SignDriver{
		self:           self,
		selfID:         selfID,
		secret:         secretShare,
		groupPublicKey: groupPublicKey,
		signers:        sorted,
		message:        message,
		round:          1,
		commitments:    make(map[mpcdriver.PartyNumber]nonceCommitment),
		shares:         make(map[mpcdriver.PartyNumber]*edwards25519.Scalar),
		cached:         make(map[uint16][]mpcdriver.RoundMessage[SignMessage]),
		randomScalar:   randomEdwardsScalar,
	}, nil
}

func (d *SignDriver) needs() int {
	return len(d.signers) - 1
}

// RoundInfo reports the current round and whether every signer's
// commitment (round 2) or share (round 3) has arrived.
func (d *SignDriver) RoundInfo() mpcdriver.RoundInfo {
	switch d.round {
	case 2:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.commitments) == len(d.signers)}
	case 3:
		return mpcdriver.RoundInfo{RoundNumber: d.round, CanFinalize: len(d.shares) == len(d.signers)}
	default:
		return mpcdriver.RoundInfo{RoundNumber: d.round}
	}
}

// Proceed advances by one round, emitting this party's commitment or
// signature share broadcast.
func (d *SignDriver) Proceed() ([]mpcdriver.OutgoingRoundMessage[SignMessage], error) {
	switch d.round {
	case 1:
		d.hidingNonce = d.randomScalar()
		d.bindingNonce = d.randomScalar()
		hidingPoint := edwards25519.NewIdentityPoint().ScalarBaseMult(d.hidingNonce)
		bindingPoint := edwards25519.NewIdentityPoint().ScalarBaseMult(d.bindingNonce)
		d.commitments[d.self] = nonceCommitment{hiding: hidingPoint, binding: bindingPoint}

		body := SignMessage{Hiding: hidingPoint.Bytes(), Binding: bindingPoint.Bytes()}
		msgs := d.broadcastToOthers(body)
		d.round = 2
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	case 2:
		if len(d.commitments) != len(d.signers) {
			return nil, fmt.Errorf("frost: sign round 2 proceed called before every commitment arrived")
		}
		bindingFactors, err := d.bindingFactors()
		if err != nil {
			return nil, err
		}
		groupCommitment := edwards25519.NewIdentityPoint()
		for _, p := range d.signers {
			c := d.commitments[p]
			term := edwards25519.NewIdentityPoint().ScalarMult(bindingFactors[p], c.binding)
			term.Add(term, c.hiding)
			groupCommitment.Add(groupCommitment, term)
		}
		d.groupCommitment = groupCommitment

		challenge, err := hashToScalar(groupCommitment.Bytes(), d.groupPublicKey.Bytes(), d.message)
		if err != nil {
			return nil, err
		}
		d.challenge = challenge

		lambda, err := lagrangeCoefficient(d.selfID, d.signerIDs())
		if err != nil {
			return nil, err
		}
		bf := bindingFactors[d.self]
		z := edwards25519.NewScalar().Multiply(bf, d.bindingNonce)
		z.Add(z, d.hidingNonce)
		term := edwards25519.NewScalar().Multiply(lambda, d.challenge)
		term.Multiply(term, d.secret)
		z.Add(z, term)
		d.shares[d.self] = z

		body := SignMessage{Share: z.Bytes()}
		msgs := d.broadcastToOthers(body)
		d.round = 3
		if err := d.replayCached(); err != nil {
			return nil, err
		}
		return msgs, nil
	default:
		return nil, ErrInvalidRound
	}
}

func (d *SignDriver) signerIDs() []*edwards25519.Scalar {
	ids := make([]*edwards25519.Scalar, 0, len(d.signers))
	for _, p := range d.signers {
		id, _ := Identifier(p)
		ids = append(ids, id)
	}
	return ids
}

// bindingFactors derives each signer's rho_i = H(i || commitment-list ||
// message), the standard FROST defense against rogue-nonce attacks.
func (d *SignDriver) bindingFactors() (map[mpcdriver.PartyNumber]*edwards25519.Scalar, error) {
	var list []byte
	for _, p := range d.signers {
		c := d.commitments[p]
		list = append(list, byte(p), byte(p>>8))
		list = append(list, c.hiding.Bytes()...)
		list = append(list, c.binding.Bytes()...)
	}
	list = append(list, d.message...)

	out := make(map[mpcdriver.PartyNumber]*edwards25519.Scalar, len(d.signers))
	for _, p := range d.signers {
		prefixed := append([]byte{byte(p), byte(p >> 8)}, list...)
		scalar, err := hashToScalar(prefixed)
		if err != nil {
			return nil, err
		}
		out[p] = scalar
	}
	return out, nil
}

func hashToScalar(parts ...[]byte) (*edwards25519.Scalar, error) {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
}

func (d *SignDriver) broadcastToOthers(body SignMessage) []mpcdriver.OutgoingRoundMessage[SignMessage] {
	msgs := make([]mpcdriver.OutgoingRoundMessage[SignMessage], 0, d.needs())
	for _, p := range d.signers {
		if p == d.self {
			continue
		}
		msgs = append(msgs, mpcdriver.OutgoingRoundMessage[SignMessage]{Broadcast: true, Receiver: p, Body: body})
	}
	return msgs
}

// HandleIncoming records a peer's commitment or share, caching it if it
// targets a round this driver has not yet reached.
func (d *SignDriver) HandleIncoming(msg mpcdriver.RoundMessage[SignMessage]) error {
	if msg.Round == 0 {
		return mpcdriver.ErrInvalidRound
	}
	if msg.Round > d.round {
		d.cached[msg.Round] = append(d.cached[msg.Round], msg)
		return nil
	}
	return d.ingest(msg)
}

func (d *SignDriver) ingest(msg mpcdriver.RoundMessage[SignMessage]) error {
	switch msg.Round {
	case 2:
		hiding, err := edwards25519.NewIdentityPoint().SetBytes(msg.Body.Hiding)
		if err != nil {
			return fmt.Errorf("frost: bad hiding commitment from party %d: %w", msg.Sender, err)
		}
		binding, err := edwards25519.NewIdentityPoint().SetBytes(msg.Body.Binding)
		if err != nil {
			return fmt.Errorf("frost: bad binding commitment from party %d: %w", msg.Sender, err)
		}
		d.commitments[msg.Sender] = nonceCommitment{hiding: hiding, binding: binding}
	case 3:
		share, err := edwards25519.NewScalar().SetCanonicalBytes(msg.Body.Share)
		if err != nil {
			return fmt.Errorf("frost: bad signature share from party %d: %w", msg.Sender, err)
		}
		d.shares[msg.Sender] = share
	default:
		return ErrInvalidRound
	}
	return nil
}

func (d *SignDriver) replayCached() error {
	pending := d.cached[d.round]
	delete(d.cached, d.round)
	for _, msg := range pending {
		if err := d.ingest(msg); err != nil {
			return err
		}
	}
	return nil
}

// TryFinalizeRound sums every signer's share and verifies the resulting
// signature under the group public key using the stock crypto/ed25519
// verifier.
func (d *SignDriver) TryFinalizeRound() (*Signature, error) {
	if d.round != 3 || len(d.shares) != len(d.signers) {
		return nil, nil
	}

	s := edwards25519.NewScalar()
	for _, share := range d.shares {
		s.Add(s, share)
	}

	sig := Signature{R: d.groupCommitment.Bytes(), S: s.Bytes()}
	if !ed25519.Verify(ed25519.PublicKey(d.groupPublicKey.Bytes()), d.message, sig.Bytes()) {
		return nil, ErrSignatureVerification
	}
	return &sig, nil
}
