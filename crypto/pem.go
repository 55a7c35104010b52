package crypto

import (
	"encoding/pem"
	"fmt"
)

// PEM block types, in the fixed order a document must carry them.
const (
	pemTagPattern = "NOISE PATTERN"
	pemTagPublic  = "NOISE PUBLIC KEY"
	pemTagPrivate = "NOISE PRIVATE KEY"
)

// ErrInvalidPEMShape is returned when a document does not carry exactly
// the three expected blocks in the expected order.
var ErrInvalidPEMShape = fmt.Errorf("crypto: PEM document must contain exactly pattern, public key, private key blocks in that order")

// ErrPatternMismatch is returned when a decoded pattern block does not
// match the pattern the caller expected.
var ErrPatternMismatch = fmt.Errorf("crypto: noise pattern mismatch")

// EncodePEM renders a keypair as the three-block PEM document this module
// uses everywhere a static identity crosses a process boundary: pattern,
// public key, private key, in that order. The pattern is the fixed Noise
// pattern name this relay speaks (see noise.PatternName); callers that
// decode the document validate it still matches.
func EncodePEM(pattern string, kp *KeyPair) ([]byte, error) {
	if kp == nil {
		return nil, fmt.Errorf("crypto: cannot encode nil key pair")
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{
		Type:  pemTagPattern,
		Bytes: []byte(pattern),
	})...)
	out = append(out, pem.EncodeToMemory(&pem.Block{
		Type:  pemTagPublic,
		Bytes: kp.Public[:],
	})...)
	out = append(out, pem.EncodeToMemory(&pem.Block{
		Type:  pemTagPrivate,
		Bytes: kp.Private[:],
	})...)
	return out, nil
}

// DecodePEM parses a document produced by EncodePEM. It fails with
// ErrInvalidPEMShape on any block count or ordering other than exactly
// [pattern, public, private], and with ErrPatternMismatch if the decoded
// pattern does not equal expectedPattern.
func DecodePEM(doc []byte, expectedPattern string, kind KeyType) (*KeyPair, error) {
	var blocks []*pem.Block
	rest := doc
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}

	if len(blocks) != 3 {
		return nil, ErrInvalidPEMShape
	}
	if blocks[0].Type != pemTagPattern || blocks[1].Type != pemTagPublic || blocks[2].Type != pemTagPrivate {
		return nil, ErrInvalidPEMShape
	}

	pattern := string(blocks[0].Bytes)
	if pattern != expectedPattern {
		return nil, fmt.Errorf("%w: got %q want %q", ErrPatternMismatch, pattern, expectedPattern)
	}

	if len(blocks[1].Bytes) != 32 || len(blocks[2].Bytes) != 32 {
		return nil, fmt.Errorf("crypto: PEM key block must be 32 bytes")
	}

	kp := &KeyPair{Type: kind}
	copy(kp.Public[:], blocks[1].Bytes)
	copy(kp.Private[:], blocks[2].Bytes)
	return kp, nil
}
