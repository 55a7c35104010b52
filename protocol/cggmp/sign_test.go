package cggmp

import (
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

func TestSignatureDriverProducesVerifiableSignature(t *testing.T) {
	participants := partyRange(3)
	shares := runKeyInit(t, participants)

	hash := sha256.Sum256([]byte("withdraw 10 BTC to address 1A2b3C"))

	drivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[SignMessage, RecoverableSignature], len(participants))
	for _, p := range participants {
		d, err := NewSignatureDriver(p, shares[p], participants, hash)
		if err != nil {
			t.Fatalf("party %d: NewSignatureDriver: %v", p, err)
		}
		drivers[p] = d
	}

	results, err := runProtocol[SignMessage, RecoverableSignature](participants, drivers)
	if err != nil {
		t.Fatalf("runProtocol: %v", err)
	}
	if len(results) != len(participants) {
		t.Fatalf("expected %d finalized signatures, got %d", len(participants), len(results))
	}

	pub := secp256k1.NewPublicKey(&shares[1].GroupPublicKey.X, &shares[1].GroupPublicKey.Y)
	for p, sig := range results {
		var r, s secp256k1.ModNScalar
		r.SetByteSlice(sig.R)
		s.SetByteSlice(sig.S)
		verify := ecdsa.NewSignature(&r, &s)
		if !verify.Verify(hash[:], pub) {
			t.Errorf("party %d produced a signature that failed independent ECDSA verification", p)
		}
	}

	first := results[participants[0]]
	for _, p := range participants[1:] {
		if string(results[p].R) != string(first.R) || string(results[p].S) != string(first.S) {
			t.Errorf("party %d diverged on the combined signature", p)
		}
	}
}

func TestNewSignatureDriverRejectsTooFewSigners(t *testing.T) {
	participants := partyRange(3)
	shares := runKeyInit(t, participants)
	var hash [32]byte
	if _, err := NewSignatureDriver(1, shares[1], []mpcdriver.PartyNumber{1}, hash); err == nil {
		t.Error("expected an error when fewer signers than the share's threshold are supplied")
	}
}
