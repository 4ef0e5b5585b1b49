package net

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(logger)
}

func TestSessionSendReceive(t *testing.T) {
	a, b := net.Pipe()

	sa := NewSession("peer-b", a, true, testLogger())
	sb := NewSession("peer-a", b, false, testLogger())

	sa.Open()
	sb.Open()

	if sa.State() != Open || sb.State() != Open {
		t.Fatalf("expected both sessions Open")
	}

	if !sa.Send(TypePing, &PingBody{Timestamp: 42}) {
		t.Fatalf("expected send to open session to succeed")
	}

	select {
	case frame := <-sb.Inbound():
		if frame.Type != TypePing {
			t.Fatalf("expected ping frame, got %s", frame.Type)
		}
		var body PingBody
		if err := frame.Decode(&body); err != nil {
			t.Fatalf("err: %v", err)
		}
		if body.Timestamp != 42 {
			t.Fatalf("expected timestamp 42, got %d", body.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
	}

	sa.Close()
	sb.Close()

	if sa.Send(TypePing, &PingBody{}) {
		t.Fatalf("expected send on closed session to fail")
	}
}

func TestSessionSendWhenNotOpen(t *testing.T) {
	a, _ := net.Pipe()
	s := NewSession("peer", a, true, testLogger())

	if s.Send(TypePing, &PingBody{}) {
		t.Fatalf("expected send before Open to fail")
	}
}

func TestPingDoesNotCountFirstMissPreemptively(t *testing.T) {
	a, b := net.Pipe()
	sa := NewSession("peer-b", a, true, testLogger())
	sb := NewSession("peer-a", b, false, testLogger())
	sa.Open()
	sb.Open()

	go func() {
		for range sb.Inbound() {
		}
	}()

	sa.Ping()
	if sa.State() != Open {
		t.Fatalf("expected the very first ping to never count as an immediate miss")
	}
}

func TestPingClosesOnlyAfterWindowsElapseWithoutPongs(t *testing.T) {
	a, b := net.Pipe()
	sa := NewSession("peer-b", a, true, testLogger())
	sb := NewSession("peer-a", b, false, testLogger())
	sa.Open()
	sb.Open()

	// sb never answers with a pong, simulating a peer that stops responding.
	go func() {
		for range sb.Inbound() {
		}
	}()

	for i := 0; i < 3; i++ {
		sa.Ping()
		if sa.State() != Open {
			t.Fatalf("expected session to remain open after ping #%d with its predecessor's window not yet checked", i+1)
		}
	}

	sa.Ping()
	if sa.State() == Open {
		t.Fatalf("expected session to close once three ping windows elapsed without a pong")
	}
}

func TestPingStaysOpenWhenEveryPongArrives(t *testing.T) {
	a, b := net.Pipe()
	sa := NewSession("peer-b", a, true, testLogger())
	sb := NewSession("peer-a", b, false, testLogger())
	sa.Open()
	sb.Open()

	go func() {
		for f := range sb.Inbound() {
			if f.Type == TypePing {
				var body PingBody
				if err := f.Decode(&body); err == nil {
					sb.Pong(body.Timestamp)
				}
			}
		}
	}()

	for i := 0; i < 5; i++ {
		sa.Ping()
		time.Sleep(10 * time.Millisecond)
	}

	if sa.State() != Open {
		t.Fatalf("expected a session answering every ping with a pong to stay open")
	}
}

func TestShouldInitiateTieBreak(t *testing.T) {
	if !ShouldInitiate("bbbb", "aaaa") {
		t.Fatalf("expected lexicographically larger id to initiate")
	}
	if ShouldInitiate("aaaa", "bbbb") {
		t.Fatalf("expected lexicographically smaller id to not initiate")
	}
}
