package session

import (
	"testing"

	"github.com/google/uuid"

	"github.com/opd-ai/polysig-go/wire"
)

func TestConnectionsReturnsStrictSuffix(t *testing.T) {
	all := []wire.PublicKey{key(1), key(2), key(3), key(4)}
	s := State{SessionID: uuid.New(), AllParticipants: all}

	cases := []struct {
		own  wire.PublicKey
		want int
	}{
		{key(1), 3},
		{key(2), 2},
		{key(3), 1},
		{key(4), 0},
		{key(99), 0},
	}

	for _, tc := range cases {
		got := Connections(s, tc.own)
		if len(got) != tc.want {
			t.Errorf("Connections(%v) len = %d, want %d", tc.own, len(got), tc.want)
		}
	}
}

func TestConnectionsEmptyParticipantListReturnsEmptyNotError(t *testing.T) {
	s := State{SessionID: uuid.New()}
	got := Connections(s, key(1))
	if len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestPeerKeyAndPartyNumberAreInverses(t *testing.T) {
	all := []wire.PublicKey{key(1), key(2), key(3)}
	s := State{SessionID: uuid.New(), AllParticipants: all}

	for i, k := range all {
		n, ok := PartyNumber(s, k)
		if !ok || n != i+1 {
			t.Errorf("PartyNumber(%v) = %d, %v; want %d, true", k, n, ok, i+1)
		}
		resolved, ok := PeerKey(s, n)
		if !ok || resolved != k {
			t.Errorf("PeerKey(%d) = %v, %v; want %v, true", n, resolved, ok, k)
		}
	}

	if _, ok := PeerKey(s, 0); ok {
		t.Error("PeerKey(0) should fail, party numbers are 1-indexed")
	}
	if _, ok := PeerKey(s, 4); ok {
		t.Error("PeerKey(4) should fail, out of range")
	}
}
