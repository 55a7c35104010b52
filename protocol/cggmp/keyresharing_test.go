package cggmp

import (
	"testing"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

func TestKeyResharingPreservesAccountVerifyingKey(t *testing.T) {
	oldHolders := []mpcdriver.PartyNumber{1, 2}
	oldShares := runKeyInit(t, oldHolders)
	accountKey := oldShares[1].GroupPublicKey

	newHolders := []mpcdriver.PartyNumber{1, 2, 3}
	newThreshold := 2

	drivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[DKGMessage, ThresholdKeyShare], len(newHolders))
	for _, p := range newHolders {
		var inputs ReshareInputs
		if s, ok := oldShares[p]; ok {
			inputs = ReshareInputs{
				OldShare:            s.Secret,
				AccountVerifyingKey: accountKey,
				OldHolders:          oldHolders,
				NewHolders:          newHolders,
				NewThreshold:        newThreshold,
			}
		} else {
			inputs = ReshareInputs{
				OldShare:            nil,
				AccountVerifyingKey: accountKey,
				OldHolders:          oldHolders,
				NewHolders:          newHolders,
				NewThreshold:        newThreshold,
			}
		}

		d, err := NewKeyResharingDriver(p, inputs)
		if err != nil {
			t.Fatalf("party %d: NewKeyResharingDriver: %v", p, err)
		}
		drivers[p] = d
	}

	results, err := runProtocol[DKGMessage, ThresholdKeyShare](newHolders, drivers)
	if err != nil {
		t.Fatalf("runProtocol: %v", err)
	}
	if len(results) != len(newHolders) {
		t.Fatalf("expected %d finalized shares, got %d", len(newHolders), len(results))
	}

	for p, share := range results {
		if !jacobianEqual(share.GroupPublicKey, accountKey) {
			t.Errorf("party %d's reshared group public key does not match the original account key", p)
		}
		if share.Threshold != newThreshold {
			t.Errorf("party %d: threshold = %d, want %d", p, share.Threshold, newThreshold)
		}
	}
}

func TestDeriveReshareInputsFailsWithoutOwnShareOrAck(t *testing.T) {
	if _, err := DeriveReshareInputs(nil, nil, []mpcdriver.PartyNumber{1, 2}, []mpcdriver.PartyNumber{1, 2, 3}, 2); err != ErrNoKeyInitAck {
		t.Errorf("expected ErrNoKeyInitAck, got %v", err)
	}
}

func TestDeriveReshareInputsRecoversAccountKeyFromAck(t *testing.T) {
	oldHolders := []mpcdriver.PartyNumber{1, 2}
	oldShares := runKeyInit(t, oldHolders)
	ack := KeyInitAck{PartyIndex: 0, KeyShareVerifyingKey: oldShares[1].VerifyingKey()}

	inputs, err := DeriveReshareInputs(nil, []KeyInitAck{ack}, oldHolders, []mpcdriver.PartyNumber{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("DeriveReshareInputs: %v", err)
	}
	if !jacobianEqual(inputs.AccountVerifyingKey, oldShares[1].GroupPublicKey) {
		t.Error("recovered account verifying key does not match the original")
	}
	if inputs.OldShare != nil {
		t.Error("expected a nil OldShare for a party that sat out key-init")
	}
}
