package frost

import (
	"fmt"
	"testing"

	"filippo.io/edwards25519"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

func edwardsBaseMult(t *testing.T, scalar *edwards25519.Scalar) *edwards25519.Point {
	t.Helper()
	return edwards25519.NewIdentityPoint().ScalarBaseMult(scalar)
}

// runProtocol drives a set of same-protocol drivers to completion entirely
// in-process, mimicking bridge.Bridge's Proceed/HandleIncoming/
// TryFinalizeRound dispatch loop without any real transport.
func runProtocol[M any, O any](parties []mpcdriver.PartyNumber, drivers map[mpcdriver.PartyNumber]mpcdriver.Driver[M, O]) (map[mpcdriver.PartyNumber]*O, error) {
	results := make(map[mpcdriver.PartyNumber]*O)

	for p, d := range drivers {
		msgs, err := d.Proceed()
		if err != nil {
			return nil, fmt.Errorf("party %d initial proceed: %w", p, err)
		}
		if err := deliver(drivers, p, msgs); err != nil {
			return nil, err
		}
	}

	for len(results) < len(parties) {
		progressed := false
		for p, d := range drivers {
			if _, done := results[p]; done {
				continue
			}
			info := d.RoundInfo()
			if !info.CanFinalize {
				continue
			}
			out, err := d.TryFinalizeRound()
			if err != nil {
				return nil, fmt.Errorf("party %d finalize: %w", p, err)
			}
			if out != nil {
				results[p] = out
				progressed = true
				continue
			}
			msgs, err := d.Proceed()
			if err != nil {
				return nil, fmt.Errorf("party %d proceed: %w", p, err)
			}
			if err := deliver(drivers, p, msgs); err != nil {
				return nil, err
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("protocol stalled with %d/%d parties finalized", len(results), len(parties))
		}
	}
	return results, nil
}

func deliver[M any, O any](drivers map[mpcdriver.PartyNumber]mpcdriver.Driver[M, O], sender mpcdriver.PartyNumber, msgs []mpcdriver.OutgoingRoundMessage[M]) error {
	round := drivers[sender].RoundInfo().RoundNumber
	for _, m := range msgs {
		rm, err := mpcdriver.NewRoundMessage(round, sender, m.Receiver, m.Body)
		if err != nil {
			return err
		}
		if err := drivers[m.Receiver].HandleIncoming(rm); err != nil {
			return fmt.Errorf("party %d handling message from %d: %w", m.Receiver, sender, err)
		}
	}
	return nil
}

func partyRange(n int) []mpcdriver.PartyNumber {
	out := make([]mpcdriver.PartyNumber, n)
	for i := range out {
		out[i] = mpcdriver.PartyNumber(i + 1)
	}
	return out
}
