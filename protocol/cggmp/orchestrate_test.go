package cggmp

import (
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// TestDKGThreeOfFiveProducesSignableShares is §8 scenario 3: a CGGMP DKG
// with threshold 3 over 5 parties must produce 5 threshold shares, any 3
// of which can jointly reconstruct and sign.
func TestDKGThreeOfFiveProducesSignableShares(t *testing.T) {
	shares, err := DKG(5, 3)
	if err != nil {
		t.Fatalf("DKG: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 threshold shares, got %d", len(shares))
	}

	want := shares[1].VerifyingKey()
	for p, s := range shares {
		if string(s.VerifyingKey()) != string(want) {
			t.Errorf("party %d disagrees on the account verifying key", p)
		}
		if s.Threshold != 3 {
			t.Errorf("party %d: threshold = %d, want 3", p, s.Threshold)
		}
	}

	signerNumbers := []mpcdriver.PartyNumber{2, 3, 5}
	signingShares := make(map[mpcdriver.PartyNumber]*ThresholdKeyShare, len(signerNumbers))
	for _, p := range signerNumbers {
		signingShares[p] = shares[p]
	}

	hash := sha256.Sum256([]byte("transfer 3 of 5 threshold funds"))
	sigs, err := Sign(signingShares, hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sigs) != len(signerNumbers) {
		t.Fatalf("expected %d signatures, got %d", len(signerNumbers), len(sigs))
	}

	pub := secp256k1.NewPublicKey(&shares[1].GroupPublicKey.X, &shares[1].GroupPublicKey.Y)
	for p, sig := range sigs {
		var r, s secp256k1.ModNScalar
		r.SetByteSlice(sig.R)
		s.SetByteSlice(sig.S)
		if !ecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
			t.Errorf("party %d's signature failed verification against the account key", p)
		}
	}
}

// TestDKGThresholdEqualsPartiesSkipsReshare is the t == n boundary case:
// every party ran key-init directly, so DKG must return the init output
// without a reshare phase (§4.I).
func TestDKGThresholdEqualsPartiesSkipsReshare(t *testing.T) {
	shares, err := DKG(3, 3)
	if err != nil {
		t.Fatalf("DKG: %v", err)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}
	for p, s := range shares {
		if s.Threshold != 3 {
			t.Errorf("party %d: threshold = %d, want 3 (t == n, no reshare)", p, s.Threshold)
		}
	}
}

// TestDKGReshareThreeOfFivePreservesAccountKey is §8 scenario 4: resharing
// 3-of-5 with old threshold == new threshold must leave the account
// verifying key unchanged.
func TestDKGReshareThreeOfFivePreservesAccountKey(t *testing.T) {
	shares, err := DKG(5, 3)
	if err != nil {
		t.Fatalf("DKG: %v", err)
	}
	accountKey := string(shares[1].VerifyingKey())

	initGroup := []mpcdriver.PartyNumber{1, 2, 3}
	all := partyRange(5)
	acks := []KeyInitAck{{PartyIndex: 0, KeyShareVerifyingKey: []byte(accountKey)}}

	drivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[DKGMessage, ThresholdKeyShare], 5)
	for _, p := range all {
		var ownShare *ThresholdKeyShare
		for _, ip := range initGroup {
			if ip == p {
				ownShare = shares[p]
			}
		}
		inputs, err := DeriveReshareInputs(ownShare, acks, initGroup, all, 3)
		if err != nil {
			t.Fatalf("party %d: DeriveReshareInputs: %v", p, err)
		}
		d, err := NewKeyResharingDriver(p, inputs)
		if err != nil {
			t.Fatalf("party %d: NewKeyResharingDriver: %v", p, err)
		}
		drivers[p] = d
	}

	reshared, err := runProtocol[DKGMessage, ThresholdKeyShare](all, drivers)
	if err != nil {
		t.Fatalf("runProtocol: %v", err)
	}
	for p, s := range reshared {
		if string(s.VerifyingKey()) != accountKey {
			t.Errorf("party %d's reshared verifying key does not match the original account key", p)
		}
	}
}

func TestDKGRejectsThresholdOutOfRange(t *testing.T) {
	if _, err := DKG(3, 0); err == nil {
		t.Error("expected an error for threshold 0")
	}
	if _, err := DKG(3, 4); err == nil {
		t.Error("expected an error for threshold exceeding party count")
	}
}
