package net

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Rendezvous wire message types (§6).
const (
	rvTypeRegister     = "register"
	rvTypeGetPeers     = "get-peers"
	rvTypeOffer        = "offer"
	rvTypeAnswer       = "answer"
	rvTypeICECandidate = "ice-candidate"
	rvTypePing         = "ping"
	rvTypePong         = "pong"
	rvTypePeerList     = "peer-list"
	rvTypePeerJoined   = "peer-joined"
	rvTypePeerLeft     = "peer-left"
	rvTypeError        = "error"
)

// rendezvousFrame is the envelope for every rendezvous message. Unlike the
// peer-to-peer Frame, fields are flattened directly onto the envelope
// because the rendezvous protocol's messages are small and fixed-shape.
type rendezvousFrame struct {
	Type            string      `json:"type"`
	NodeID          string      `json:"nodeId,omitempty"`
	From            string      `json:"from,omitempty"`
	To              string      `json:"to,omitempty"`
	Signal          interface{} `json:"signal,omitempty"`
	Timestamp       int64       `json:"timestamp,omitempty"`
	Peers           []string    `json:"peers,omitempty"`
	Message         string      `json:"message,omitempty"`
	OriginalMessage interface{} `json:"originalMessage,omitempty"`
}

const (
	openTimeout        = 10 * time.Second
	reconnectInitial   = 5 * time.Second
	reconnectMax       = 60 * time.Second
	reconnectFactor    = 2
)

// RendezvousClient exchanges session-setup blobs (offer/answer/ice-candidate)
// with peers through a trusted third-party WebSocket endpoint, per §4.2.
type RendezvousClient struct {
	addr   string
	nodeID string
	logger *logrus.Entry

	l       sync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	OnPeerList   func(peers []string)
	OnPeerJoined func(nodeID string)
	OnPeerLeft   func(nodeID string)
	OnSignal     func(typ, from string, signal interface{})
	OnError      func(message string)
}

// NewRendezvousClient creates a client for the rendezvous endpoint at addr
// (ws://host:port/path), identified by nodeID.
func NewRendezvousClient(addr, nodeID string, logger *logrus.Entry) *RendezvousClient {
	return &RendezvousClient{
		addr:   addr,
		nodeID: nodeID,
		logger: logger.WithField("component", "rendezvous"),
		stopCh: make(chan struct{}),
	}
}

// Start opens the initial connection and registers the node. Failure to
// open on startup is fatal to node startup per §4.2/§7 (RendezvousUnavailable).
func (c *RendezvousClient) Start() error {
	if err := c.connect(); err != nil {
		return fmt.Errorf("rendezvous unavailable: %w", err)
	}

	c.l.Lock()
	c.running = true
	c.l.Unlock()

	go c.readLoop()

	return nil
}

func (c *RendezvousClient) connect() error {
	dialer := &websocket.Dialer{HandshakeTimeout: openTimeout}

	conn, _, err := dialer.Dial(c.addr, nil)
	if err != nil {
		return err
	}

	c.l.Lock()
	c.conn = conn
	c.l.Unlock()

	return c.send(&rendezvousFrame{Type: rvTypeRegister, NodeID: c.nodeID})
}

func (c *RendezvousClient) send(f *rendezvousFrame) error {
	c.l.Lock()
	conn := c.conn
	c.l.Unlock()

	if conn == nil {
		return fmt.Errorf("rendezvous connection not established")
	}
	return conn.WriteJSON(f)
}

// GetPeers asks the rendezvous service to (re-)send the current peer list.
func (c *RendezvousClient) GetPeers() error {
	return c.send(&rendezvousFrame{Type: rvTypeGetPeers, NodeID: c.nodeID})
}

// SendSignal forwards an offer/answer/ice-candidate blob to a specific peer
// via the rendezvous service.
func (c *RendezvousClient) SendSignal(typ, to string, signal interface{}) error {
	return c.send(&rendezvousFrame{
		Type:   typ,
		From:   c.nodeID,
		To:     to,
		Signal: signal,
	})
}

func (c *RendezvousClient) readLoop() {
	for {
		c.l.Lock()
		conn := c.conn
		running := c.running
		c.l.Unlock()

		if !running {
			return
		}

		var frame rendezvousFrame
		err := conn.ReadJSON(&frame)
		if err != nil {
			c.logger.WithError(err).Warn("rendezvous connection lost")
			c.reconnectLoop()
			continue
		}

		c.dispatch(&frame)
	}
}

func (c *RendezvousClient) dispatch(f *rendezvousFrame) {
	switch f.Type {
	case rvTypePeerList:
		if c.OnPeerList != nil {
			c.OnPeerList(f.Peers)
		}
	case rvTypePeerJoined:
		if c.OnPeerJoined != nil {
			c.OnPeerJoined(f.NodeID)
		}
	case rvTypePeerLeft:
		if c.OnPeerLeft != nil {
			c.OnPeerLeft(f.NodeID)
		}
	case rvTypeOffer, rvTypeAnswer, rvTypeICECandidate:
		if c.OnSignal != nil {
			c.OnSignal(f.Type, f.From, f.Signal)
		}
	case rvTypePong:
		// liveness only, no action needed.
	case rvTypeError:
		if c.OnError != nil {
			c.OnError(f.Message)
		}
	default:
		c.logger.WithField("type", f.Type).Debug("unhandled rendezvous message")
	}
}

// reconnectLoop retries with capped exponential backoff (5s, 10s, 20s,
// capped at 60s) until the connection is re-established or Stop is called.
func (c *RendezvousClient) reconnectLoop() {
	delay := reconnectInitial

	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err == nil {
			c.logger.Info("reconnected to rendezvous")
			return
		}

		delay *= reconnectFactor
		if delay > reconnectMax {
			delay = reconnectMax
		}

		c.logger.WithField("retry_in", delay).Debug("rendezvous reconnect failed")
	}
}

// Stop closes the rendezvous connection and halts reconnection attempts.
func (c *RendezvousClient) Stop() {
	c.l.Lock()
	if !c.running {
		c.l.Unlock()
		return
	}
	c.running = false
	conn := c.conn
	c.l.Unlock()

	close(c.stopCh)
	if conn != nil {
		conn.Close()
	}
}

// signalPayload marshals an SDP-less signal blob generically: this core
// treats rendezvous payloads as opaque JSON, the same way §1's "Out of
// scope" note leaves the encrypted datagram transport external.
func signalPayload(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}
