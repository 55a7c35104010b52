package frost

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// Round numbers for the three-round DKG, matching ROUND_1..ROUND_3 in
// original_source/crates/driver/src/frost/ed25519/key_gen.rs.
const (
	Round1 uint16 = 1
	Round2 uint16 = 2
	Round3 uint16 = 3
)

var (
	// ErrUnknownIdentifier is returned when a round message names a party
	// number outside the configured committee.
	ErrUnknownIdentifier = errors.New("frost: unknown party identifier")
	// ErrInvalidRound is returned when proceed/finalize is called in a
	// round number this driver does not implement.
	ErrInvalidRound = errors.New("frost: invalid round number")
	// ErrTooFewSigners is returned when a signing run is started with an
	// empty signer list. NewSignDriver is not given the DKG threshold, so
	// it does not compare the signer count against it.
	ErrTooFewSigners = errors.New("frost: fewer signers than the threshold requires")
	// ErrMissingCommitment is not returned by this package's drivers:
	// SignDriver.TryFinalizeRound returns (nil, nil) until every signer's
	// share has arrived.
	ErrMissingCommitment = errors.New("frost: missing a signer's round package")
)

// Identifier converts a 1-indexed party number into its corresponding
// non-zero scalar, the representation frost-ed25519 uses for participant
// identity in Shamir shares.
func Identifier(party mpcdriver.PartyNumber) (*edwards25519.Scalar, error) {
	if party == 0 {
		return nil, fmt.Errorf("frost: %w: party number must be non-zero", ErrUnknownIdentifier)
	}
	return scalarFromUint16(uint16(party)), nil
}

// scalarFromUint16 builds a canonical little-endian scalar encoding of a
// small non-negative integer.
func scalarFromUint16(v uint16) *edwards25519.Scalar {
	var buf [32]byte
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	s, err := edwards25519.NewScalar().SetCanonicalBytes(buf[:])
	if err != nil {
		// A two-byte value is always a canonical scalar encoding; this
		// path is unreachable.
		panic(err)
	}
	return s
}

// KeyShare is a single party's output of the DKG: its own secret share,
// the group's public verification key, and the full set of per-party
// verification shares needed to check signature shares during signing.
type KeyShare struct {
	Identifier      mpcdriver.PartyNumber
	Secret          *edwards25519.Scalar
	GroupPublicKey  *edwards25519.Point
	VerifyingShares map[mpcdriver.PartyNumber]*edwards25519.Point
}

// commitment is a Feldman-style public commitment to one coefficient of a
// party's secret polynomial: coefficient*G.
type commitment = edwards25519.Point

// polynomial is a party's locally-generated secret sharing polynomial for
// one DKG run, degree threshold-1.
type polynomial struct {
	coeffs []*edwards25519.Scalar
}

func newPolynomial(degree int, randomScalar func() *edwards25519.Scalar) *polynomial {
	coeffs := make([]*edwards25519.Scalar, degree+1)
	for i := range coeffs {
		coeffs[i] = randomScalar()
	}
	return &polynomial{coeffs: coeffs}
}

// evaluate computes f(x) via Horner's method.
func (p *polynomial) evaluate(x *edwards25519.Scalar) *edwards25519.Scalar {
	result := edwards25519.NewScalar()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result.Multiply(result, x)
		result.Add(result, p.coeffs[i])
	}
	return result
}

// commitments returns coeff_k*G for every coefficient, in order.
func (p *polynomial) commitments() []*commitment {
	out := make([]*commitment, len(p.coeffs))
	for i, c := range p.coeffs {
		out[i] = edwards25519.NewIdentityPoint().ScalarBaseMult(c)
	}
	return out
}

// evaluateCommitments computes Σ commitments[k] * x^k without learning the
// underlying secret, the public analogue of polynomial.evaluate, used to
// verify a received share against the sender's published commitments.
func evaluateCommitments(commitments []*commitment, x *edwards25519.Scalar) *edwards25519.Point {
	result := edwards25519.NewIdentityPoint()
	xPow := scalarOne()
	for _, c := range commitments {
		term := edwards25519.NewIdentityPoint().ScalarMult(xPow, c)
		result.Add(result, term)
		xPow = edwards25519.NewScalar().Multiply(xPow, x)
	}
	return result
}

func scalarOne() *edwards25519.Scalar {
	return scalarFromUint16(1)
}

// lagrangeCoefficient computes λ_i for identifier self over the set ids,
// evaluated at x=0, the standard Shamir reconstruction weight.
func lagrangeCoefficient(self *edwards25519.Scalar, ids []*edwards25519.Scalar) (*edwards25519.Scalar, error) {
	num := scalarOne()
	den := scalarOne()
	for _, id := range ids {
		if id.Equal(self) == 1 {
			continue
		}
		num.Multiply(num, id)
		diff := edwards25519.NewScalar().Subtract(id, self)
		den.Multiply(den, diff)
	}
	if den.Equal(edwards25519.NewScalar()) == 1 {
		return nil, fmt.Errorf("frost: degenerate lagrange denominator")
	}
	return edwards25519.NewScalar().Multiply(num, edwards25519.NewScalar().Invert(den)), nil
}
