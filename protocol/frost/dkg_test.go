package frost

import (
	"testing"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

func runFrostDKG(t *testing.T, n, threshold int) map[mpcdriver.PartyNumber]*KeyShare {
	t.Helper()
	parties := partyRange(n)
	drivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[DKGMessage, KeyShare], n)
	for _, p := range parties {
		d, err := NewDKGDriver(p, threshold, parties)
		if err != nil {
			t.Fatalf("party %d: NewDKGDriver: %v", p, err)
		}
		drivers[p] = d
	}

	results, err := runProtocol[DKGMessage, KeyShare](parties, drivers)
	if err != nil {
		t.Fatalf("runProtocol: %v", err)
	}
	return results
}

func TestDKGAllPartiesAgreeOnGroupPublicKey(t *testing.T) {
	results := runFrostDKG(t, 3, 2)
	if len(results) != 3 {
		t.Fatalf("expected 3 finalized shares, got %d", len(results))
	}

	want := results[1].GroupPublicKey.Bytes()
	for p, share := range results {
		if got := share.GroupPublicKey.Bytes(); string(got) != string(want) {
			t.Errorf("party %d disagrees on the group public key", p)
		}
	}
}

func TestDKGVerifyingSharesMatchSecretShares(t *testing.T) {
	results := runFrostDKG(t, 3, 2)
	for p, share := range results {
		expected := edwardsBaseMult(t, share.Secret)
		verifying, ok := results[p].VerifyingShares[p]
		if !ok {
			t.Fatalf("party %d missing its own verifying share", p)
		}
		if expected.Equal(verifying) != 1 {
			t.Errorf("party %d's verifying share does not match its secret share", p)
		}
	}
}

func TestNewDKGDriverRejectsThresholdOutOfRange(t *testing.T) {
	parties := partyRange(3)
	if _, err := NewDKGDriver(1, 0, parties); err == nil {
		t.Error("expected an error for threshold 0")
	}
	if _, err := NewDKGDriver(1, 4, parties); err == nil {
		t.Error("expected an error for threshold exceeding participant count")
	}
}

func TestNewDKGDriverRejectsSelfNotInParticipants(t *testing.T) {
	parties := partyRange(3)
	if _, err := NewDKGDriver(7, 2, parties); err == nil {
		t.Error("expected an error when self is not among participants")
	}
}
