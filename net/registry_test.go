package net

import (
	"net"
	"testing"
	"time"
)

type pipeDialer struct {
	remote net.Conn
}

func (d *pipeDialer) Dial(peerID string, timeout time.Duration) (net.Conn, error) {
	return d.remote, nil
}

func TestRegistryBroadcastAndSend(t *testing.T) {
	a, b := net.Pipe()

	registry := NewRegistry("self", &pipeDialer{remote: a}, testLogger())

	received := make(chan *Frame, 1)
	registry.OnFrame(func(s *Session, f *Frame) {
		received <- f
	})

	registry.Dial("peer-b")

	// give the dial goroutine a moment to adopt the session
	time.Sleep(50 * time.Millisecond)

	peers := registry.ConnectedPeers()
	if len(peers) != 1 || peers[0] != "peer-b" {
		t.Fatalf("expected one connected peer, got %v", peers)
	}

	// simulate the far end of the pipe sending a frame
	other := NewSession("self", b, false, testLogger())
	other.Open()
	other.Send(TypeTransaction, &TransactionBody{Transaction: map[string]string{"id": "tx-1"}})

	select {
	case f := <-received:
		if f.Type != TypeTransaction {
			t.Fatalf("expected transaction frame, got %s", f.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame to reach registry")
	}

	sent := registry.Send("peer-b", TypeNewBlock, &NewBlockBody{Block: map[string]int{"index": 1}})
	if !sent {
		t.Fatalf("expected send to known peer to succeed")
	}

	if ok := registry.Send("unknown-peer", TypePing, &PingBody{}); ok {
		t.Fatalf("expected send to unknown peer to fail")
	}

	registry.Drop("peer-b")
	time.Sleep(20 * time.Millisecond)

	if len(registry.ConnectedPeers()) != 0 {
		t.Fatalf("expected no connected peers after drop")
	}
}

func TestRegistryDialIsNoopWhenAlreadyConnected(t *testing.T) {
	a, _ := net.Pipe()
	registry := NewRegistry("self", &pipeDialer{remote: a}, testLogger())

	registry.Dial("peer-b")
	time.Sleep(20 * time.Millisecond)

	// second dial to the same peer must not replace the existing session
	before := registry.ConnectedPeers()
	registry.Dial("peer-b")
	time.Sleep(20 * time.Millisecond)
	after := registry.ConnectedPeers()

	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected exactly one session before and after redundant dial")
	}
}
