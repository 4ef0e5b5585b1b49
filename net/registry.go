package net

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Dialer opens an outbound connection to a peer. In production this is
// satisfied by a StreamLayer backed by the rendezvous-negotiated transport;
// tests can substitute an in-memory pipe.
type Dialer interface {
	Dial(peerID string, timeout time.Duration) (net.Conn, error)
}

// DialTimeout bounds how long a dial may take before the registry gives up
// and clears the in-flight marker.
const DialTimeout = 10 * time.Second

// Registry tracks one Session per connected peer, and the set of dials
// currently in flight. It is the single place session lifecycle events
// (connect/disconnect) fan out from.
type Registry struct {
	selfID string
	dialer Dialer
	logger *logrus.Entry

	l         sync.Mutex
	sessions  map[string]*Session
	inFlight  map[string]bool

	onOpen  func(*Session)
	onFrame func(*Session, *Frame)
	onClose func(peerID string)
}

// NewRegistry creates a Registry for a node identified by selfID.
func NewRegistry(selfID string, dialer Dialer, logger *logrus.Entry) *Registry {
	return &Registry{
		selfID:   selfID,
		dialer:   dialer,
		logger:   logger,
		sessions: make(map[string]*Session),
		inFlight: make(map[string]bool),
	}
}

// OnOpen registers the callback invoked when a session transitions to Open.
func (r *Registry) OnOpen(f func(*Session)) { r.onOpen = f }

// OnFrame registers the callback invoked for every inbound frame.
func (r *Registry) OnFrame(f func(*Session, *Frame)) { r.onFrame = f }

// OnClose registers the callback invoked when a session closes.
func (r *Registry) OnClose(f func(peerID string)) { r.onClose = f }

// Adopt registers an already-established connection (e.g. one accepted from
// a remote offer rather than dialed locally) as an open Session. The
// lexicographic tie-break (§3) is resolved by the caller before Adopt is
// invoked: the loser of the tie-break discards its own in-flight dial and
// waits for the winner's connection to be adopted instead.
func (r *Registry) Adopt(peerID string, conn net.Conn, initiator bool) *Session {
	r.l.Lock()
	if existing, ok := r.sessions[peerID]; ok {
		r.l.Unlock()
		existing.Close()
		r.l.Lock()
	}

	session := NewSession(peerID, conn, initiator, r.logger)
	r.sessions[peerID] = session
	delete(r.inFlight, peerID)
	r.l.Unlock()

	session.Open()
	go r.pump(session)

	if r.onOpen != nil {
		r.onOpen(session)
	}

	return session
}

func (r *Registry) pump(session *Session) {
	for frame := range session.Inbound() {
		if frame.Type == TypePing {
			var body PingBody
			frame.Decode(&body)
			session.Pong(body.Timestamp)
			continue
		}
		if r.onFrame != nil {
			r.onFrame(session, frame)
		}
	}

	r.l.Lock()
	if r.sessions[session.PeerID] == session {
		delete(r.sessions, session.PeerID)
	}
	r.l.Unlock()

	session.Close()

	if r.onClose != nil {
		r.onClose(session.PeerID)
	}
}

// Dial is a no-op if a session already exists or a dial is already in
// flight for peerID; otherwise it opens a connection and adopts it. The
// lexicographic tie-break rule means a node should only initiate a dial
// when its own NodeId is the lexicographically larger of the pair — callers
// are expected to check that before calling Dial, same as the registry
// checking session/in-flight state here.
func (r *Registry) Dial(peerID string) {
	r.l.Lock()
	if _, ok := r.sessions[peerID]; ok {
		r.l.Unlock()
		return
	}
	if r.inFlight[peerID] {
		r.l.Unlock()
		return
	}
	r.inFlight[peerID] = true
	r.l.Unlock()

	go func() {
		conn, err := r.dialer.Dial(peerID, DialTimeout)
		if err != nil {
			r.logger.WithError(err).WithField("peer", peerID).Debug("dial failed")
			r.l.Lock()
			delete(r.inFlight, peerID)
			r.l.Unlock()
			return
		}
		r.Adopt(peerID, conn, true)
	}()
}

// Drop closes and removes a session by peer id, if one exists.
func (r *Registry) Drop(peerID string) {
	r.l.Lock()
	session, ok := r.sessions[peerID]
	if ok {
		delete(r.sessions, peerID)
	}
	r.l.Unlock()

	if ok {
		session.Close()
	}
}

// Send delivers msg to a specific peer, returning false if no open session
// exists for it.
func (r *Registry) Send(peerID, typ string, body interface{}) bool {
	r.l.Lock()
	session, ok := r.sessions[peerID]
	r.l.Unlock()

	if !ok {
		return false
	}
	return session.Send(typ, body)
}

// Broadcast sends msg to every open session except those in exclude, and
// returns the number of peers it was sent to.
func (r *Registry) Broadcast(typ string, body interface{}, exclude ...string) int {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	r.l.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !excluded[id] {
			targets = append(targets, s)
		}
	}
	r.l.Unlock()

	sent := 0
	for _, s := range targets {
		if s.Send(typ, body) {
			sent++
		}
	}
	return sent
}

// ConnectedPeers returns the set of peer ids with an open session.
func (r *Registry) ConnectedPeers() []string {
	r.l.Lock()
	defer r.l.Unlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Heartbeat pings every open session. Called by the node's 30s heartbeat
// timer.
func (r *Registry) Heartbeat() {
	r.l.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.l.Unlock()

	for _, s := range targets {
		s.Ping()
	}
}

// HelloVerifier reports whether an inbound connection's claimed NodeId is
// one the node is prepared to adopt a session for (typically: one it has
// already exchanged a rendezvous offer/answer with).
type HelloVerifier func(claimedID string) bool

// AcceptHandshake reads the hello frame a freshly accepted (not dialed)
// connection must send first, verifies the claimed identity, and adopts it
// as an open Session keyed by that identity. A connection that fails to
// hello or fails verification is closed without ever becoming a Session.
func (r *Registry) AcceptHandshake(conn net.Conn, verify HelloVerifier) {
	reader := bufio.NewReader(conn)
	dec := json.NewDecoder(reader)

	var f Frame
	if err := dec.Decode(&f); err != nil {
		conn.Close()
		return
	}
	if f.Type != TypeHello {
		r.logger.WithField("type", f.Type).Debug("expected hello as first frame, closing")
		conn.Close()
		return
	}

	var hello HelloBody
	if err := f.Decode(&hello); err != nil || hello.NodeID == "" || !verify(hello.NodeID) {
		r.logger.WithField("claimed_id", hello.NodeID).Debug("hello verification failed, closing")
		conn.Close()
		return
	}

	r.l.Lock()
	if existing, ok := r.sessions[hello.NodeID]; ok {
		r.l.Unlock()
		existing.Close()
		r.l.Lock()
	}

	session := newSessionWithReader(hello.NodeID, conn, reader, false, r.logger)
	r.sessions[hello.NodeID] = session
	delete(r.inFlight, hello.NodeID)
	r.l.Unlock()

	session.Open()
	go r.pump(session)

	if r.onOpen != nil {
		r.onOpen(session)
	}
}

// ShouldInitiate applies the tie-break rule from §3: the lexicographically
// larger NodeId is the initiator when both sides dial simultaneously.
func ShouldInitiate(selfID, remoteID string) bool {
	return selfID > remoteID
}
