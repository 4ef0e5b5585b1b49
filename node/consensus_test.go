package node

import (
	"testing"
	"time"

	"github.com/meshledger/meshledger/crypto"
	"github.com/meshledger/meshledger/net"
	"github.com/meshledger/meshledger/peers"
)

func TestArmVoteTimerCancelsPrevious(t *testing.T) {
	n := newTestNode(t)

	n.armVoteTimer()
	first := n.voteTimerC

	n.armVoteTimer()
	second := n.voteTimerC

	if first == second {
		t.Fatalf("expected armVoteTimer to install a fresh channel each call")
	}

	select {
	case <-first:
		t.Fatalf("expected the superseded timer to be cancelled, not fire")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRecomputeLeaderParksProductionTimerWhenNotLeader(t *testing.T) {
	n := newTestNode(t)
	n.productionTimer = NewFixedControlTimer()
	go n.productionTimer.Run(0)
	t.Cleanup(n.productionTimer.Shutdown)

	other, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	otherPeer, err := peers.NewPeer(other.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	n.whitelist.AddPeer(otherPeer)

	n.recomputeLeader()

	if n.isLeader {
		t.Fatalf("expected single-other-peer whitelist to never elect self as leader")
	}
	if n.currentLeader != crypto.NodeID(otherPeer.NodeID) {
		t.Fatalf("expected current leader to be the only whitelisted peer")
	}
}

func TestRecomputeLeaderNoopOnEmptyWhitelist(t *testing.T) {
	n := newTestNode(t)
	n.productionTimer = NewFixedControlTimer()
	go n.productionTimer.Run(0)
	t.Cleanup(n.productionTimer.Shutdown)

	n.recomputeLeader()

	if n.currentLeader != "" {
		t.Fatalf("expected no leader to be selected from an empty whitelist")
	}
}

func TestOnLeaderAnnouncementRejectsUnwhitelistedSender(t *testing.T) {
	n := newTestNode(t)
	n.productionTimer = NewFixedControlTimer()
	go n.productionTimer.Run(0)
	t.Cleanup(n.productionTimer.Shutdown)

	frame, err := net.NewFrame(net.TypeLeaderAnnouncement, &net.LeaderAnnouncementBody{
		Leader:      "stranger",
		BlockHeight: n.chain.Height(),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	n.onLeaderAnnouncement("stranger", frame)

	if n.currentLeader != "" {
		t.Fatalf("expected announcement from an unwhitelisted peer to be ignored, got leader %q", n.currentLeader)
	}
}

func TestOnLeaderAnnouncementRejectsStaleHeight(t *testing.T) {
	n := newTestNode(t)
	n.productionTimer = NewFixedControlTimer()
	go n.productionTimer.Run(0)
	t.Cleanup(n.productionTimer.Shutdown)

	senderKP, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	sender, err := peers.NewPeer(senderKP.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	n.whitelist.AddPeer(sender)

	n.currentLeader = crypto.NodeID(sender.NodeID)

	otherKP, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	other, err := peers.NewPeer(otherKP.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	n.whitelist.AddPeer(other)

	frame, err := net.NewFrame(net.TypeLeaderAnnouncement, &net.LeaderAnnouncementBody{
		Leader:      other.NodeID,
		BlockHeight: 0, // strictly behind local height, which starts at 1 (genesis)
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	n.onLeaderAnnouncement(sender.NodeID, frame)

	if n.currentLeader != crypto.NodeID(sender.NodeID) {
		t.Fatalf("expected stale-height announcement to be rejected, got leader %q", n.currentLeader)
	}
}

func TestOnLeaderAnnouncementAcceptsWhitelistedCurrentHeight(t *testing.T) {
	n := newTestNode(t)
	n.productionTimer = NewFixedControlTimer()
	go n.productionTimer.Run(0)
	t.Cleanup(n.productionTimer.Shutdown)

	senderKP, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	sender, err := peers.NewPeer(senderKP.PublicKeyHex(), "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	n.whitelist.AddPeer(sender)

	frame, err := net.NewFrame(net.TypeLeaderAnnouncement, &net.LeaderAnnouncementBody{
		Leader:      sender.NodeID,
		BlockHeight: n.chain.Height(),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	n.onLeaderAnnouncement(sender.NodeID, frame)

	if n.currentLeader != crypto.NodeID(sender.NodeID) {
		t.Fatalf("expected whitelisted, current-height announcement to be accepted, got leader %q", n.currentLeader)
	}
}

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size, chunkSize, want int
	}{
		{0, 1024, 1},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{2048, 1024, 2},
	}
	for _, c := range cases {
		if got := chunkCount(c.size, c.chunkSize); got != c.want {
			t.Fatalf("chunkCount(%d, %d) = %d, want %d", c.size, c.chunkSize, got, c.want)
		}
	}
}
