package peers

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/meshledger/meshledger/crypto"
)

func newTestPeer(t *testing.T) *Peer {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	p, err := NewPeer(kp.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return p
}

func TestWhitelistAddRemove(t *testing.T) {
	w := NewWhitelist(nil)

	if w.Len() != 0 {
		t.Fatalf("expected empty whitelist")
	}

	p1 := newTestPeer(t)
	w.AddPeer(p1)

	if !w.Contains(p1.NodeID) {
		t.Fatalf("expected whitelist to contain p1")
	}

	// adding twice is a no-op
	w.AddPeer(p1)
	if w.Len() != 1 {
		t.Fatalf("expected len 1, got %d", w.Len())
	}

	w.RemovePeer(p1.NodeID)
	if w.Contains(p1.NodeID) {
		t.Fatalf("expected p1 to be removed")
	}
}

func TestWhitelistQuorumDefaults(t *testing.T) {
	w := NewWhitelist(nil)

	// empty whitelist: min_votes (1) still applies, even though there is no
	// leader to reach it.
	if q := w.Quorum(); q != 1 {
		t.Fatalf("expected quorum 1 for empty whitelist, got %d", q)
	}

	for i := 0; i < 2; i++ {
		w.AddPeer(newTestPeer(t))
	}
	// ceil(2/2) = 1, max(1, 1) = 1
	if q := w.Quorum(); q != 1 {
		t.Fatalf("expected quorum 1 for 2-peer whitelist, got %d", q)
	}

	w.AddPeer(newTestPeer(t))
	// ceil(3/2) = 2
	if q := w.Quorum(); q != 2 {
		t.Fatalf("expected quorum 2 for 3-peer whitelist, got %d", q)
	}
}

func TestWhitelistQuorumMinVotesFloor(t *testing.T) {
	w := NewWhitelist(nil)
	w.MinVotes = 3
	for i := 0; i < 2; i++ {
		w.AddPeer(newTestPeer(t))
	}
	// ceil(2/2) = 1 but MinVotes floors it at 3
	if q := w.Quorum(); q != 3 {
		t.Fatalf("expected quorum floored at MinVotes=3, got %d", q)
	}
}

func TestWhitelistLeaderSchedule(t *testing.T) {
	w := NewWhitelist(nil)

	if _, ok := w.LeaderAt(0, 0); ok {
		t.Fatalf("expected no leader for empty whitelist")
	}

	var ps []*Peer
	for i := 0; i < 3; i++ {
		p := newTestPeer(t)
		ps = append(ps, p)
		w.AddPeer(p)
	}

	for height := uint64(0); height < 6; height++ {
		leader, ok := w.LeaderAt(height, 0)
		if !ok {
			t.Fatalf("expected a leader at height %d", height)
		}
		want := ps[height%3]
		if leader.NodeID != want.NodeID {
			t.Fatalf("height %d: expected leader %s, got %s", height, want.NodeID, leader.NodeID)
		}
	}
}

func TestJSONPeerStoreRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "meshledger-peerstore")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeerStore(dir)

	empty, err := store.Load()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if empty.Len() != 0 {
		t.Fatalf("expected empty whitelist on first load")
	}

	w := NewWhitelist(nil)
	w.AddPeer(newTestPeer(t))
	w.AddPeer(newTestPeer(t))

	if err := store.Save(w); err != nil {
		t.Fatalf("err: %v", err)
	}

	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 peers after reload, got %d", reloaded.Len())
	}
	for _, p := range w.Peers() {
		if !reloaded.Contains(p.NodeID) {
			t.Fatalf("expected reloaded whitelist to contain %s", p.NodeID)
		}
	}
}
