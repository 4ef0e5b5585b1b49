package net

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionState mirrors the node package's atomic state pattern, applied to
// a single peer session instead of the whole node.
type SessionState uint32

const (
	// Connecting is the state between dial/accept and transport-ready.
	Connecting SessionState = iota
	// Open is the state in which frames may be sent and received.
	Open
	// Closing is entered on local teardown or a transport error, before the
	// underlying connection is actually closed.
	Closing
	// Closed is terminal.
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// missedPongLimit is the number of consecutive missed pongs that marks a
// session Closing, per the liveness window. A miss is only counted once a
// ping's own response window (one heartbeat interval) has elapsed without
// its pong, never pre-emptively at send time.
const missedPongLimit = 3

// Session owns framed I/O for exactly one remote peer: one JSON object in,
// one JSON object out, at a time, in order, until close.
type Session struct {
	PeerID    string
	Initiator bool

	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder

	state    atomic.Uint32
	missed   atomic.Int32
	lastPing atomic.Int64 // last_ping_sent
	lastPong atomic.Int64 // last_pong_received

	inbound chan *Frame
	closeCh chan struct{}
	closeMu sync.Mutex
	closed  bool

	logger *logrus.Entry
}

// NewSession wraps an established connection. The caller is responsible for
// having already authenticated the remote peer (identity binding happens in
// the rendezvous handshake, before a Session is constructed).
func NewSession(peerID string, conn net.Conn, initiator bool, logger *logrus.Entry) *Session {
	return newSessionWithReader(peerID, conn, bufio.NewReader(conn), initiator, logger)
}

// newSessionWithReader builds a Session that decodes off an
// already-constructed reader, so a caller that had to peek a frame off the
// connection before a Session existed (see Registry.AcceptHandshake) does
// not lose whatever that reader had already buffered.
func newSessionWithReader(peerID string, conn net.Conn, r *bufio.Reader, initiator bool, logger *logrus.Entry) *Session {
	s := &Session{
		PeerID:    peerID,
		Initiator: initiator,
		conn:      conn,
		enc:       json.NewEncoder(conn),
		dec:       json.NewDecoder(r),
		inbound:   make(chan *Frame, 64),
		closeCh:   make(chan struct{}),
		logger:    logger.WithField("peer", peerID),
	}
	s.state.Store(uint32(Connecting))
	return s
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(uint32(st))
}

// Open transitions Connecting -> Open and starts the read loop. Frames
// arriving off the wire are delivered on Inbound().
func (s *Session) Open() {
	s.setState(Open)
	go s.readLoop()
}

// Inbound is the channel of frames received from the peer, in order.
func (s *Session) Inbound() <-chan *Frame {
	return s.inbound
}

func (s *Session) readLoop() {
	defer close(s.inbound)
	for {
		var f Frame
		if err := s.dec.Decode(&f); err != nil {
			if s.State() != Closed && s.State() != Closing {
				s.logger.WithError(err).Debug("session read error")
				s.setState(Closing)
			}
			return
		}

		if f.Type == TypePong {
			s.lastPong.Store(time.Now().UnixMilli())
			s.missed.Store(0)
		}

		select {
		case s.inbound <- &f:
		case <-s.closeCh:
			return
		}
	}
}

// Send writes a frame to the peer. It returns false without writing if the
// session is not Open, matching the "silently dropped" delivery guarantee
// for non-open sessions.
func (s *Session) Send(typ string, body interface{}) bool {
	if s.State() != Open {
		return false
	}

	frame, err := NewFrame(typ, body)
	if err != nil {
		s.logger.WithError(err).Warn("failed to encode frame")
		return false
	}

	if err := s.enc.Encode(frame); err != nil {
		s.logger.WithError(err).Debug("session write error")
		s.setState(Closing)
		return false
	}

	return true
}

// Ping first checks whether the previous ping's own response window has
// elapsed without a pong — i.e. this call is happening and lastPong still
// predates lastPing — and only then counts it as missed, before sending a
// fresh ping and recording its send time. A miss is never counted
// pre-emptively at send time, only once its window has actually passed.
func (s *Session) Ping() {
	if s.State() != Open {
		return
	}

	if s.lastPing.Load() > s.lastPong.Load() {
		if s.missed.Add(1) >= missedPongLimit {
			s.logger.Warn("peer missed 3 consecutive pongs, closing session")
			s.Close()
			return
		}
	}

	now := time.Now().UnixMilli()
	s.lastPing.Store(now)
	s.Send(TypePing, &PingBody{Timestamp: now})
}

// Pong replies to an inbound ping, echoing its timestamp.
func (s *Session) Pong(timestamp int64) {
	s.Send(TypePong, &PongBody{Timestamp: timestamp})
}

// Close tears the session down: Open/Connecting -> Closing -> Closed. It is
// safe to call more than once.
func (s *Session) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	s.setState(Closing)
	close(s.closeCh)
	s.conn.Close()
	s.setState(Closed)
}
