package cggmp

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

var (
	// ErrUnknownIdentifier is returned when a party number falls outside
	// the configured committee for a driver.
	ErrUnknownIdentifier = errors.New("cggmp: unknown party identifier")
	// ErrInvalidRound is returned when Proceed/TryFinalizeRound is reached
	// in a round this driver does not implement.
	ErrInvalidRound = errors.New("cggmp: invalid round number")
	// ErrFeldmanVerification is returned when a received share does not
	// match the sender's published polynomial commitments.
	ErrFeldmanVerification = errors.New("cggmp: share failed Feldman verification")
	// ErrAccountKeyMismatch is returned when a resharing run's recomputed
	// group public key does not match the account verifying key the
	// caller supplied, indicating a malicious or inconsistent old holder.
	ErrAccountKeyMismatch = errors.New("cggmp: resharing did not preserve the account verifying key")
)

// Identifier converts a 1-indexed party number into its corresponding
// non-zero scalar, the x-coordinate at which that party's Shamir share is
// evaluated.
func Identifier(party mpcdriver.PartyNumber) (*secp256k1.ModNScalar, error) {
	if party == 0 {
		return nil, fmt.Errorf("cggmp: %w: party number must be non-zero", ErrUnknownIdentifier)
	}
	var s secp256k1.ModNScalar
	s.SetInt(uint32(party))
	return &s, nil
}

func randomScalar() *secp256k1.ModNScalar {
	for {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic(err)
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(buf[:]); !overflow && !s.IsZero() {
			return &s
		}
	}
}

func scalarPoint(scalar *secp256k1.ModNScalar) *secp256k1.JacobianPoint {
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(scalar, &p)
	p.ToAffine()
	return &p
}

func addPoints(a, b *secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	secp256k1.AddNonConst(a, b, &result)
	result.ToAffine()
	return &result
}

func scalarMultPoint(scalar *secp256k1.ModNScalar, point *secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(scalar, point, &result)
	result.ToAffine()
	return &result
}

func pointToBytes(p *secp256k1.JacobianPoint) []byte {
	pub := secp256k1.NewPublicKey(&p.X, &p.Y)
	return pub.SerializeCompressed()
}

func bytesToPoint(raw []byte) (*secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, err
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return &p, nil
}

// polynomial is a party's secret-sharing polynomial for one DKG or
// resharing run.
type polynomial struct {
	coeffs []*secp256k1.ModNScalar
}

// newPolynomial builds a degree-length polynomial whose constant term is
// fixed to constantTerm (the party's own secret contribution, or its
// Lagrange-weighted old share during resharing) and whose remaining
// coefficients are random.
func newPolynomial(degree int, constantTerm *secp256k1.ModNScalar) *polynomial {
	coeffs := make([]*secp256k1.ModNScalar, degree+1)
	coeffs[0] = constantTerm
	for i := 1; i <= degree; i++ {
		coeffs[i] = randomScalar()
	}
	return &polynomial{coeffs: coeffs}
}

func (p *polynomial) evaluate(x *secp256k1.ModNScalar) *secp256k1.ModNScalar {
	result := new(secp256k1.ModNScalar)
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result.Mul(x)
		result.Add(p.coeffs[i])
	}
	return result
}

func (p *polynomial) commitments() []*secp256k1.JacobianPoint {
	out := make([]*secp256k1.JacobianPoint, len(p.coeffs))
	for i, c := range p.coeffs {
		out[i] = scalarPoint(c)
	}
	return out
}

// evaluateCommitments computes Σ commitments[k] * x^k, the public
// analogue of polynomial.evaluate used to Feldman-verify a received share.
func evaluateCommitments(commitments []*secp256k1.JacobianPoint, x *secp256k1.ModNScalar) *secp256k1.JacobianPoint {
	result := &secp256k1.JacobianPoint{}
	xPow := new(secp256k1.ModNScalar).SetInt(1)
	for _, c := range commitments {
		term := scalarMultPoint(xPow, c)
		result = addPoints(result, term)
		xPow = new(secp256k1.ModNScalar).Mul2(xPow, x)
	}
	return result
}

// lagrangeCoefficient computes λ_i for identifier self over the set ids,
// evaluated at x=0.
func lagrangeCoefficient(self *secp256k1.ModNScalar, ids []*secp256k1.ModNScalar) (*secp256k1.ModNScalar, error) {
	num := new(secp256k1.ModNScalar).SetInt(1)
	den := new(secp256k1.ModNScalar).SetInt(1)
	for _, id := range ids {
		if id.Equals(self) {
			continue
		}
		num.Mul2(num, id)
		diff := new(secp256k1.ModNScalar).Set(self)
		diff.Negate()
		diff.Add(id)
		den.Mul2(den, diff)
	}
	if den.IsZero() {
		return nil, fmt.Errorf("cggmp: degenerate lagrange denominator")
	}
	den.InverseValNonConst()
	return num.Mul2(num, den), nil
}

// ThresholdKeyShare is one party's output of a CGGMP DKG or resharing run.
type ThresholdKeyShare struct {
	Identifier      mpcdriver.PartyNumber
	Secret          *secp256k1.ModNScalar
	GroupPublicKey  *secp256k1.JacobianPoint
	Threshold       int
	VerifyingShares map[mpcdriver.PartyNumber]*secp256k1.JacobianPoint
}

// VerifyingKey returns the compressed SEC1 encoding of the account
// verifying key this share belongs to.
func (k *ThresholdKeyShare) VerifyingKey() []byte {
	return pointToBytes(k.GroupPublicKey)
}
