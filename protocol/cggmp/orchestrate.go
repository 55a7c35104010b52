package cggmp

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/opd-ai/polysig-go/mpcdriver"
)

// KeyInitAck is the message key-init participants send to the parties that
// sat out the init phase (party_index >= t), carrying enough information
// for the full committee to agree on the account verifying key before
// resharing begins. Mirrors original_source's
// crates/client/src/protocols/cggmp/mod.rs KeyInitAck.
type KeyInitAck struct {
	PartyIndex           mpcdriver.PartyNumber
	KeyShareVerifyingKey []byte
}

// ErrNoKeyInitAck is returned by DeriveReshareInputs when a party outside
// the key-init committee has no ack to recover the account verifying key
// from.
var ErrNoKeyInitAck = fmt.Errorf("cggmp: no key-init ack available")

// DeriveReshareInputs assembles ReshareInputs for one party ahead of a
// KeyResharingDriver run, the networkless counterpart of make_dkg_reshare
// in original_source's mod.rs: a key-init participant already holds
// ownShare and reads its own verifying key off it, while a party that sat
// out key-init (ownShare == nil) must recover the account verifying key
// from an ack broadcast by one of the init participants.
func DeriveReshareInputs(
	ownShare *ThresholdKeyShare,
	acks []KeyInitAck,
	oldHolders, newHolders []mpcdriver.PartyNumber,
	newThreshold int,
) (ReshareInputs, error) {
	if ownShare != nil {
		return ReshareInputs{
			OldShare:            ownShare.Secret,
			AccountVerifyingKey: ownShare.GroupPublicKey,
			OldHolders:          oldHolders,
			NewHolders:          newHolders,
			NewThreshold:        newThreshold,
		}, nil
	}

	for _, ack := range acks {
		if ack.PartyIndex == 0 {
			point, err := bytesToPoint(ack.KeyShareVerifyingKey)
			if err != nil {
				return ReshareInputs{}, fmt.Errorf("cggmp: bad verifying key in key-init ack: %w", err)
			}
			return ReshareInputs{
				OldShare:            nil,
				AccountVerifyingKey: point,
				OldHolders:          oldHolders,
				NewHolders:          newHolders,
				NewThreshold:        newThreshold,
			}, nil
		}
	}
	return ReshareInputs{}, ErrNoKeyInitAck
}

// DKG runs the full two-phase CGGMP threshold key generation sequence from
// §4.I: the first t of n parties run a t-of-t key-init, broadcast a
// KeyInitAck to the remaining n-t parties, and then — unless t == n, in
// which case the init output already covers the full committee — all n
// parties run resharing to distribute an n-of-t share to everyone while
// preserving the account verifying key. Grounded on original_source's
// crates/client/src/protocols/cggmp/mod.rs dkg(), sequenced here over
// directly-wired driver maps rather than a live session, through the same
// runProtocol loop the driver tests use for each individual phase.
func DKG(n, t int) (map[mpcdriver.PartyNumber]*ThresholdKeyShare, error) {
	if t < 1 || t > n {
		return nil, fmt.Errorf("cggmp: threshold %d out of range for %d parties", t, n)
	}

	all := partyRange(n)
	initGroup := append([]mpcdriver.PartyNumber(nil), all[:t]...)

	initDrivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[DKGMessage, ThresholdKeyShare], t)
	for _, p := range initGroup {
		d, err := NewKeyInitDriver(p, initGroup)
		if err != nil {
			return nil, fmt.Errorf("cggmp: key-init setup for party %d: %w", p, err)
		}
		initDrivers[p] = d
	}
	initShares, err := runProtocol[DKGMessage, ThresholdKeyShare](initGroup, initDrivers)
	if err != nil {
		return nil, fmt.Errorf("cggmp: key-init phase: %w", err)
	}

	if t == n {
		return initShares, nil
	}

	// Every init party broadcasts a KeyInitAck to the parties that sat this
	// phase out; the ack at 0-based position 0 within initGroup is the
	// designated source of the account verifying key (§4.I), independent of
	// the 1-based PartyNumber identifiers the Shamir math uses.
	acks := make([]KeyInitAck, 0, t)
	for i, p := range initGroup {
		acks = append(acks, KeyInitAck{
			PartyIndex:           mpcdriver.PartyNumber(i),
			KeyShareVerifyingKey: initShares[p].VerifyingKey(),
		})
	}

	reshareDrivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[DKGMessage, ThresholdKeyShare], n)
	for _, p := range all {
		inputs, err := DeriveReshareInputs(initShares[p], acks, initGroup, all, t)
		if err != nil {
			return nil, fmt.Errorf("cggmp: deriving reshare inputs for party %d: %w", p, err)
		}
		d, err := NewKeyResharingDriver(p, inputs)
		if err != nil {
			return nil, fmt.Errorf("cggmp: reshare setup for party %d: %w", p, err)
		}
		reshareDrivers[p] = d
	}
	return runProtocol[DKGMessage, ThresholdKeyShare](all, reshareDrivers)
}

// Sign runs CGGMP threshold-ECDSA signing from §4.I: AuxGenDriver to
// completion among the signers named by shares' keys, followed by
// SignatureDriver over a digest domain-separated by the resulting session
// salt. Folding AuxInfo.SessionSalt into the signed digest this way is the
// Open Questions decision recorded in DESIGN.md for how aux-gen's output
// feeds a subsequent signing run. Every signer's output has already been
// independently verified against the share's group public key (by
// SignatureDriver.TryFinalizeRound) before Sign returns it.
func Sign(shares map[mpcdriver.PartyNumber]*ThresholdKeyShare, hash [32]byte) (map[mpcdriver.PartyNumber]*RecoverableSignature, error) {
	signers := make([]mpcdriver.PartyNumber, 0, len(shares))
	for p := range shares {
		signers = append(signers, p)
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })

	auxDrivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[AuxMessage, AuxInfo], len(signers))
	for _, p := range signers {
		d, err := NewAuxGenDriver(p, signers)
		if err != nil {
			return nil, fmt.Errorf("cggmp: aux-gen setup for party %d: %w", p, err)
		}
		auxDrivers[p] = d
	}
	auxInfo, err := runProtocol[AuxMessage, AuxInfo](signers, auxDrivers)
	if err != nil {
		return nil, fmt.Errorf("cggmp: aux-gen phase: %w", err)
	}

	signDrivers := make(map[mpcdriver.PartyNumber]mpcdriver.Driver[SignMessage, RecoverableSignature], len(signers))
	for _, p := range signers {
		salt := auxInfo[p].SessionSalt
		salted := sha256.Sum256(append(append([]byte{}, hash[:]...), salt[:]...))
		d, err := NewSignatureDriver(p, shares[p], signers, salted)
		if err != nil {
			return nil, fmt.Errorf("cggmp: signature setup for party %d: %w", p, err)
		}
		signDrivers[p] = d
	}
	return runProtocol[SignMessage, RecoverableSignature](signers, signDrivers)
}

// runProtocol drives a set of same-protocol drivers to completion entirely
// in-process, mimicking bridge.Bridge's Proceed/HandleIncoming/
// TryFinalizeRound dispatch loop without any real transport. DKG and Sign
// above use this to sequence each phase; this package's driver tests use
// it directly to exercise one driver in isolation.
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

// partyRange returns 1..n as the 1-indexed PartyNumber identifiers used
// throughout this package.
func partyRange(n int) []mpcdriver.PartyNumber {
	out := make([]mpcdriver.PartyNumber, n)
	for i := range out {
		out[i] = mpcdriver.PartyNumber(i + 1)
	}
	return out
}
